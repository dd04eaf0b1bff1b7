// Package storage - in-memory index.
// The index maps every live key to the disk pointer of its current value.
// Lookups take the read side of the lock, mutations the write side, so a
// lookup never waits longer than one insert/remove critical section.
package storage

import (
	"sort"
	"sync"
)

// Index is the key to disk pointer mapping owned by a volume. Its lifetime
// is governed by the volume; it is not shared process-wide.
type Index struct {
	mu      sync.RWMutex
	entries map[string]DiskPointer
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]DiskPointer)}
}

// Lookup returns the pointer for a key, if present.
func (idx *Index) Lookup(key []byte) (DiskPointer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ptr, ok := idx.entries[string(key)]
	return ptr, ok
}

// Insert maps a key to a pointer and returns the previous pointer if the
// key existed. The caller routes that previous pointer to the deletion
// tracker; the index itself does not track dead records.
func (idx *Index) Insert(key []byte, ptr DiskPointer) (DiskPointer, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prev, existed := idx.entries[string(key)]
	idx.entries[string(key)] = ptr
	return prev, existed
}

// Remove deletes a key and returns the pointer it mapped to, if any. As
// with Insert, routing the result to the deletion tracker is the caller's
// responsibility.
func (idx *Index) Remove(key []byte) (DiskPointer, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ptr, existed := idx.entries[string(key)]
	if existed {
		delete(idx.entries, string(key))
	}
	return ptr, existed
}

// Count returns the number of live keys.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// IndexEntry is one (key, pointer) pair in a snapshot.
type IndexEntry struct {
	Key     string
	Pointer DiskPointer
}

// Snapshot returns a consistent point-in-time copy of the index, sorted
// by key, for checkpointing. Mutations that start after Snapshot returns
// are not observed: the whole copy happens under the read lock.
func (idx *Index) Snapshot() []IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	entries := make([]IndexEntry, 0, len(idx.entries))
	for key, ptr := range idx.entries {
		entries = append(entries, IndexEntry{Key: key, Pointer: ptr})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}
