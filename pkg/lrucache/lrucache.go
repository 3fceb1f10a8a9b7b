// Package lrucache provides a bounded least-recently-used map.
//
// It is a thin typed wrapper over hashicorp/golang-lru that fixes the
// capacity at construction and reports evictions through a callback. The
// cache is safe for concurrent use; callers that need read-modify-write
// atomicity across Get and Put must still hold their own lock.
package lrucache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EvictFunc is called with the key and value of every entry removed to make
// room for a new one.
type EvictFunc[K comparable, V any] func(key K, value V)

// Cache is a fixed-capacity LRU map.
type Cache[K comparable, V any] struct {
	inner *lru.Cache[K, V]
}

// New creates a cache holding at most capacity entries.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) (*Cache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("lrucache: capacity must be positive, got %d", capacity)
	}

	var (
		inner *lru.Cache[K, V]
		err   error
	)
	if onEvict != nil {
		inner, err = lru.NewWithEvict[K, V](capacity, onEvict)
	} else {
		inner, err = lru.New[K, V](capacity)
	}
	if err != nil {
		return nil, fmt.Errorf("lrucache: %w", err)
	}

	return &Cache[K, V]{inner: inner}, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	return c.inner.Get(key)
}

// Put inserts or replaces key. It reports whether an older entry was
// evicted.
func (c *Cache[K, V]) Put(key K, value V) bool {
	return c.inner.Add(key, value)
}

// Delete removes key. The eviction callback fires for deleted entries too.
func (c *Cache[K, V]) Delete(key K) bool {
	return c.inner.Remove(key)
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	return c.inner.Len()
}
