package snapshot

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, Snapshot]
}

// NewMemoryCache creates a cache holding at most size snapshots for ttl each.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Snapshot](size, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (Snapshot, bool, error) {
	s, ok := m.lru.Get(key)
	return s, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, key string, s Snapshot) error {
	m.lru.Add(key, s)
	return nil
}

// Len reports the number of live snapshots.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}
