// Unit tests for the read cache
package storage

import (
	"bytes"
	"testing"
)

// TestReadCacheBasics tests put, get, and invalidation
func TestReadCacheBasics(t *testing.T) {
	c, err := newReadCache(4)
	if err != nil {
		t.Fatalf("newReadCache failed: %v", err)
	}

	if _, ok := c.get([]byte("missing")); ok {
		t.Error("Expected miss on empty cache")
	}

	c.put([]byte("k"), []byte("v"))
	value, ok := c.get([]byte("k"))
	if !ok || !bytes.Equal(value, []byte("v")) {
		t.Errorf("Expected cached v, got %q (ok=%v)", value, ok)
	}

	c.remove([]byte("k"))
	if _, ok := c.get([]byte("k")); ok {
		t.Error("Expected miss after remove")
	}
}

// TestReadCacheCopySemantics tests that the cache never aliases caller
// slices
func TestReadCacheCopySemantics(t *testing.T) {
	c, _ := newReadCache(4)

	original := []byte("value")
	c.put([]byte("k"), original)
	original[0] = 'X'

	cached, _ := c.get([]byte("k"))
	if !bytes.Equal(cached, []byte("value")) {
		t.Errorf("Expected cached copy unaffected by caller mutation, got %q", cached)
	}

	cached[0] = 'Y'
	again, _ := c.get([]byte("k"))
	if !bytes.Equal(again, []byte("value")) {
		t.Errorf("Expected cache unaffected by reader mutation, got %q", again)
	}
}

// TestReadCacheEviction tests the LRU capacity bound
func TestReadCacheEviction(t *testing.T) {
	c, _ := newReadCache(2)

	c.put([]byte("a"), []byte("1"))
	c.put([]byte("b"), []byte("2"))
	c.put([]byte("c"), []byte("3"))

	if _, ok := c.get([]byte("a")); ok {
		t.Error("Expected oldest entry to be evicted")
	}
	if _, ok := c.get([]byte("c")); !ok {
		t.Error("Expected newest entry to survive")
	}
}

// TestReadCacheDisabled tests the nil cache no-ops
func TestReadCacheDisabled(t *testing.T) {
	c, err := newReadCache(0)
	if err != nil {
		t.Fatalf("Expected disabled cache without error, got %v", err)
	}
	if c != nil {
		t.Fatal("Expected nil cache when disabled")
	}

	// All operations are nil-safe.
	c.put([]byte("k"), []byte("v"))
	if _, ok := c.get([]byte("k")); ok {
		t.Error("Expected disabled cache to always miss")
	}
	c.remove([]byte("k"))
	c.purge()
}
