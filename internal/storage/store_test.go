package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryStore_CreateRead(t *testing.T) {
	store := NewInMemoryStore()

	if err := store.Create("key1", "value1"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	v, ok := store.Read("key1")
	if !ok {
		t.Fatal("Expected key1 to be present")
	}
	if v != "value1" {
		t.Errorf("Expected 'value1', got '%s'", v)
	}
}

func TestInMemoryStore_ReadNotFound(t *testing.T) {
	store := NewInMemoryStore()
	if v, ok := store.Read("nonexistent"); ok || v != "" {
		t.Errorf("Expected miss for non-existent key, got %q, %v", v, ok)
	}
}

func TestInMemoryStore_CreateExisting(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Create("key1", "value1")

	err := store.Create("key1", "other")
	if !errors.Is(err, ErrKeyExists) {
		t.Errorf("Expected ErrKeyExists, got %v", err)
	}
	if v, _ := store.Read("key1"); v != "value1" {
		t.Errorf("Failed create must not overwrite, got '%s'", v)
	}
}

func TestInMemoryStore_UpdateDelete(t *testing.T) {
	tests := []struct {
		name    string
		setup   bool
		op      func(Store) error
		wantErr error
	}{
		{"update existing", true, func(s Store) error { return s.Update("k", "v2") }, nil},
		{"update missing", false, func(s Store) error { return s.Update("k", "v2") }, ErrKeyNotFound},
		{"delete existing", true, func(s Store) error { return s.Delete("k") }, nil},
		{"delete missing", false, func(s Store) error { return s.Delete("k") }, ErrKeyNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewInMemoryStore()
			if tt.setup {
				_ = store.Create("k", "v1")
			}
			err := tt.op(store)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestInMemoryStore_UpdateThenDelete(t *testing.T) {
	store := NewInMemoryStore()
	_ = store.Create("k", "v1")

	if err := store.Update("k", "v2"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if v, _ := store.Read("k"); v != "v2" {
		t.Errorf("Expected 'v2', got '%s'", v)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := store.Read("k"); ok {
		t.Error("Expected key to be gone after Delete")
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d keys", store.Len())
	}
}

func TestInMemoryStore_PairsSorted(t *testing.T) {
	store := NewInMemoryStore()
	for _, k := range []string{"c", "a", "b"} {
		_ = store.Create(k, "v"+k)
	}

	pairs := store.Pairs()
	want := []Pair{{"a", "va"}, {"b", "vb"}, {"c", "vc"}}
	if len(pairs) != len(want) {
		t.Fatalf("Expected %d pairs, got %d", len(want), len(pairs))
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("Pairs()[%d] = %v, want %v", i, pairs[i], want[i])
		}
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key%d", i)
			_ = store.Create(key, "v")
			_, _ = store.Read(key)
			_ = store.Update(key, "w")
		}(i)
	}
	wg.Wait()

	if store.Len() != 10 {
		t.Errorf("Expected 10 keys, got %d", store.Len())
	}
}
