// Package memory provides an in-process db.Store for single-node deployments and the CLI.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/brycewhit13/booksearch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// DefaultMaxBytes bounds the memory held by the store.
const DefaultMaxBytes int64 = 128 << 20

// Config holds in-process store settings.
type Config struct {
	MaxBytes int64
	// TTL expires written keys. Zero keeps them until evicted.
	TTL time.Duration
}

// Store implements db.Store on a ristretto cache. Values may be evicted under memory pressure,
// which callers observe as db.ErrKeyNotFound.
type Store struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

// NewStore creates an in-process store.
func NewStore(cfg Config) (*Store, error) {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e6,
		MaxCost:     cfg.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	return &Store{cache: cache, ttl: cfg.TTL}, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// Close releases the cache.
func (s *Store) Close() { s.cache.Close() }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

// Set stores a copy of value. The write is visible to Get on return.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	v := append([]byte(nil), value...)
	cost := int64(len(v))
	if cost == 0 {
		cost = 1
	}
	var ok bool
	if s.ttl > 0 {
		ok = s.cache.SetWithTTL(key, v, cost, s.ttl)
	} else {
		ok = s.cache.Set(key, v, cost)
	}
	if !ok {
		return &db.Error{Op: db.OpSet, Err: fmt.Errorf("write dropped for key %s", key)}
	}
	s.cache.Wait()
	return nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.cache.Del(key)
	return nil
}
