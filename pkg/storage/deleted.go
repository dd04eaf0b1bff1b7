// Package storage - deletion tracker.
// The tracker holds the disk pointers of records that are logically dead
// (superseded or explicitly deleted) but whose bytes have not been
// reclaimed yet. It holds only pointer values: per-strand counter deltas
// are applied by the volume, so there is no strand/tracker reference
// cycle.
package storage

import (
	"sort"
	"sync"
)

// DeletedSet is the set of tombstoned disk pointers awaiting reclamation.
// Invariant: a pointer in the set is never simultaneously a value in the
// index.
type DeletedSet struct {
	mu   sync.RWMutex
	ptrs map[DiskPointer]struct{}
}

// NewDeletedSet creates an empty tracker.
func NewDeletedSet() *DeletedSet {
	return &DeletedSet{ptrs: make(map[DiskPointer]struct{})}
}

// Add records a dead pointer. Adding the same pointer twice is a bug in
// the caller; the second add is ignored and reported.
func (d *DeletedSet) Add(ptr DiskPointer) bool {
	if ptr.IsNull() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.ptrs[ptr]; exists {
		return false
	}
	d.ptrs[ptr] = struct{}{}
	return true
}

// Contains reports whether a pointer is tracked as dead.
func (d *DeletedSet) Contains(ptr DiskPointer) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.ptrs[ptr]
	return exists
}

// Count returns the number of dead pointers.
func (d *DeletedSet) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ptrs)
}

// remove drops pointers that have been physically reclaimed.
func (d *DeletedSet) remove(ptrs []DiskPointer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ptr := range ptrs {
		delete(d.ptrs, ptr)
	}
}

// Snapshot returns all dead pointers in ascending order, for
// checkpointing.
func (d *DeletedSet) Snapshot() []DiskPointer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ptrs := make([]DiskPointer, 0, len(d.ptrs))
	for ptr := range d.ptrs {
		ptrs = append(ptrs, ptr)
	}
	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i] < ptrs[j] })
	return ptrs
}

// forStrand returns the dead pointers belonging to one strand, ascending
// by offset.
func (d *DeletedSet) forStrand(strandID uint16) []DiskPointer {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ptrs []DiskPointer
	for ptr := range d.ptrs {
		if ptr.StrandID() == strandID {
			ptrs = append(ptrs, ptr)
		}
	}
	sort.Slice(ptrs, func(i, j int) bool { return ptrs[i].Offset() < ptrs[j].Offset() })
	return ptrs
}

// planReclaim selects the contiguous dead byte ranges for a strand.
// sizeOf resolves a record's frame size by reading its length prefixes;
// adjacent dead records coalesce into a single trim range. Returns the
// ranges and the pointers they cover.
func (d *DeletedSet) planReclaim(strandID uint16, sizeOf func(offset uint64) (uint64, error)) ([]deadRange, []DiskPointer, error) {
	ptrs := d.forStrand(strandID)
	if len(ptrs) == 0 {
		return nil, nil, nil
	}

	var ranges []deadRange
	var current deadRange

	for _, ptr := range ptrs {
		size, err := sizeOf(ptr.Offset())
		if err != nil {
			return nil, nil, err
		}

		if current.items > 0 && current.offset+current.length == ptr.Offset() {
			current.length += size
			current.items++
			continue
		}
		if current.items > 0 {
			ranges = append(ranges, current)
		}
		current = deadRange{offset: ptr.Offset(), length: size, items: 1}
	}
	ranges = append(ranges, current)

	return ranges, ptrs, nil
}
