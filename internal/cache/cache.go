// Package cache provides the in-memory lookup caches that sit between the
// app and the file-backed entity services, plus the cached-service
// wrappers that keep those caches honest.
//
// Invalidation is wholesale per cache: write rates are low enough that a
// full clear is cheap, and it eliminates the class of stale-entry bugs
// that surgical per-key invalidation invites. External edits are covered
// too: every cached service subscribes to file-change events and clears
// itself when the changed entity kind matches what it caches.
package cache

import "sync"

// Cache is a concurrency-safe lookup cache keyed by entity id or a
// composite list key.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// Get returns the cached value for key, if present.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores a value under key.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Delete removes the entry for key, if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear discards every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]V)
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
