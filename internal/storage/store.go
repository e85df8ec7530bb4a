package storage

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrKeyExists is returned by Create when the key is already present.
	ErrKeyExists = errors.New("key already exists")

	// ErrKeyNotFound is returned by Update and Delete when the key is absent.
	ErrKeyNotFound = errors.New("key not found")
)

// Pair is one stored key and its value.
type Pair struct {
	Key   string
	Value string
}

// Store defines the interface for a node's local partition.
type Store interface {
	// Create inserts key. It fails with ErrKeyExists if key is present.
	Create(key, value string) error
	// Read returns the value of key and whether it was present.
	Read(key string) (string, bool)
	// Update replaces the value of an existing key.
	Update(key, value string) error
	// Delete removes an existing key.
	Delete(key string) error
	// Pairs returns every stored pair ordered by key.
	Pairs() []Pair
	// Len returns the number of stored keys.
	Len() int
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]string),
	}
}

// Create inserts key with value.
func (s *InMemoryStore) Create(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return fmt.Errorf("create %q: %w", key, ErrKeyExists)
	}
	s.data[key] = value
	return nil
}

// Read retrieves a value by key.
func (s *InMemoryStore) Read(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	return v, exists
}

// Update replaces the value of key.
func (s *InMemoryStore) Update(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return fmt.Errorf("update %q: %w", key, ErrKeyNotFound)
	}
	s.data[key] = value
	return nil
}

// Delete removes key.
func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return fmt.Errorf("delete %q: %w", key, ErrKeyNotFound)
	}
	delete(s.data, key)
	return nil
}

// Pairs returns a snapshot of the store in key order.
func (s *InMemoryStore) Pairs() []Pair {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]Pair, 0, len(s.data))
	for k, v := range s.data {
		pairs = append(pairs, Pair{Key: k, Value: v})
	}
	slices.SortFunc(pairs, func(a, b Pair) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return pairs
}

// Len returns the number of keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
