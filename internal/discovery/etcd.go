package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"ringkv/internal/addr"
	"ringkv/internal/transport"
)

// Prefix is the etcd key prefix under which nodes publish their endpoints.
const Prefix = "/ringkv/nodes/"

// NewClient connects to the etcd cluster at endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// Key returns the etcd key for a.
func Key(a addr.Address) string {
	return Prefix + a.String()
}

func parseKey(key []byte) (addr.Address, bool) {
	s, ok := strings.CutPrefix(string(key), Prefix)
	if !ok {
		return addr.Address{}, false
	}
	a, err := addr.Parse(s)
	if err != nil {
		return addr.Address{}, false
	}
	return a, true
}

// Register publishes target as the endpoint of self under a lease of ttl
// seconds. The lease is kept alive until ctx is done.
func Register(ctx context.Context, cli *clientv3.Client, self addr.Address, target string, ttl int64) (clientv3.LeaseID, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, Key(self), target, clientv3.WithLease(lease.ID)); err != nil {
		return 0, fmt.Errorf("publish %s: %w", self, err)
	}

	alive, err := cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return 0, fmt.Errorf("keep lease alive: %w", err)
	}
	go func() {
		for range alive {
		}
	}()
	return lease.ID, nil
}

// Book is a transport.AddressBook backed by the published endpoints. It is
// safe for concurrent use.
type Book struct {
	mu       sync.RWMutex
	targets  map[addr.Address]string
	fallback transport.AddressBook
	logger   *zap.Logger
}

// NewBook creates an empty book. Lookups it cannot answer go to fallback,
// which may be nil.
func NewBook(fallback transport.AddressBook, logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Book{
		targets:  make(map[addr.Address]string),
		fallback: fallback,
		logger:   logger,
	}
}

// Lookup implements transport.AddressBook.
func (b *Book) Lookup(a addr.Address) (string, bool) {
	b.mu.RLock()
	target, ok := b.targets[a]
	b.mu.RUnlock()
	if ok {
		return target, true
	}
	if b.fallback != nil {
		return b.fallback.Lookup(a)
	}
	return "", false
}

// Len returns the number of published endpoints known.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.targets)
}

// Sync loads every published endpoint and returns the revision to watch
// from.
func (b *Book) Sync(ctx context.Context, cli *clientv3.Client) (int64, error) {
	resp, err := cli.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("list endpoints: %w", err)
	}

	b.mu.Lock()
	clear(b.targets)
	b.mu.Unlock()
	for _, kv := range resp.Kvs {
		b.put(kv.Key, kv.Value)
	}
	return resp.Header.Revision, nil
}

// Watch applies endpoint changes after rev until ctx is done.
func (b *Book) Watch(ctx context.Context, cli *clientv3.Client, rev int64) {
	for resp := range cli.Watch(ctx, Prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1)) {
		if err := resp.Err(); err != nil {
			b.logger.Warn("endpoint watch failed", zap.Error(err))
			continue
		}
		for _, ev := range resp.Events {
			switch ev.Type {
			case clientv3.EventTypePut:
				b.put(ev.Kv.Key, ev.Kv.Value)
			case clientv3.EventTypeDelete:
				b.remove(ev.Kv.Key)
			}
		}
	}
}

func (b *Book) put(key, value []byte) {
	a, ok := parseKey(key)
	if !ok {
		b.logger.Warn("ignoring malformed endpoint key", zap.ByteString("key", key))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.targets[a] = string(value)
	b.logger.Debug("endpoint published", zap.Stringer("node", a), zap.ByteString("target", value))
}

func (b *Book) remove(key []byte) {
	a, ok := parseKey(key)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.targets, a)
	b.logger.Debug("endpoint withdrawn", zap.Stringer("node", a))
}
