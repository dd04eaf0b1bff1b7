// Package storage - read cache.
// A small LRU of key to value consulted before the index on every get and
// invalidated on every put/delete. Purely an optimization: the cache
// never serves a key the index would miss.
package storage

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// readCache wraps the LRU so the rest of the engine sees copy semantics:
// cached values never alias caller-visible slices.
type readCache struct {
	entries *lru.Cache[string, []byte]
}

// newReadCache creates a cache for up to size entries, or nil when the
// cache is disabled.
func newReadCache(size int) (*readCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &readCache{entries: entries}, nil
}

// get returns a copy of the cached value for a key.
func (c *readCache) get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	value, ok := c.entries.Get(string(key))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// put stores a copy of the value.
func (c *readCache) put(key, value []byte) {
	if c == nil {
		return
	}
	c.entries.Add(string(key), append([]byte(nil), value...))
}

// remove invalidates a key.
func (c *readCache) remove(key []byte) {
	if c == nil {
		return
	}
	c.entries.Remove(string(key))
}

// purge drops everything.
func (c *readCache) purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}
