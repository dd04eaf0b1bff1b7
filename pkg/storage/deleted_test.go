// Unit tests for the deletion tracker
package storage

import (
	"testing"
)

// TestDeletedSetAdd tests adding and duplicate rejection
func TestDeletedSetAdd(t *testing.T) {
	d := NewDeletedSet()
	ptr := newPointer(1, PageSize)

	if !d.Add(ptr) {
		t.Error("Expected first add to succeed")
	}
	if d.Add(ptr) {
		t.Error("Expected duplicate add to be rejected")
	}
	if d.Add(NullPointer) {
		t.Error("Expected null pointer to be rejected")
	}

	if !d.Contains(ptr) {
		t.Error("Expected pointer to be tracked")
	}
	if d.Count() != 1 {
		t.Errorf("Expected count 1, got %d", d.Count())
	}
}

// TestDeletedSetRemove tests dropping reclaimed pointers
func TestDeletedSetRemove(t *testing.T) {
	d := NewDeletedSet()
	a := newPointer(0, PageSize)
	b := newPointer(0, PageSize+50)
	d.Add(a)
	d.Add(b)

	d.remove([]DiskPointer{a})
	if d.Contains(a) {
		t.Error("Expected removed pointer to be gone")
	}
	if !d.Contains(b) {
		t.Error("Expected untouched pointer to remain")
	}
}

// TestDeletedSetSnapshot tests the ordered checkpoint view
func TestDeletedSetSnapshot(t *testing.T) {
	d := NewDeletedSet()
	ptrs := []DiskPointer{
		newPointer(1, PageSize+300),
		newPointer(0, PageSize),
		newPointer(1, PageSize),
	}
	for _, p := range ptrs {
		d.Add(p)
	}

	snap := d.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("Expected 3 pointers, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1] >= snap[i] {
			t.Errorf("Expected ascending order, got %v before %v", snap[i-1], snap[i])
		}
	}
}

// TestDeletedSetForStrand tests per-strand filtering and ordering
func TestDeletedSetForStrand(t *testing.T) {
	d := NewDeletedSet()
	d.Add(newPointer(0, PageSize+200))
	d.Add(newPointer(0, PageSize))
	d.Add(newPointer(1, PageSize+10))

	ptrs := d.forStrand(0)
	if len(ptrs) != 2 {
		t.Fatalf("Expected 2 pointers for strand 0, got %d", len(ptrs))
	}
	if ptrs[0].Offset() != PageSize || ptrs[1].Offset() != PageSize+200 {
		t.Errorf("Expected ascending offsets, got %v", ptrs)
	}
}

// TestPlanReclaimCoalescing tests that adjacent dead records merge into
// one trim range
func TestPlanReclaimCoalescing(t *testing.T) {
	d := NewDeletedSet()

	// Three records: two back-to-back at 4096 and 4126, one apart at 5000.
	sizes := map[uint64]uint64{
		PageSize:      30,
		PageSize + 30: 20,
		5000:          15,
	}
	for off := range sizes {
		d.Add(newPointer(2, off))
	}

	sizeOf := func(offset uint64) (uint64, error) {
		return sizes[offset], nil
	}

	ranges, ptrs, err := d.planReclaim(2, sizeOf)
	if err != nil {
		t.Fatalf("planReclaim failed: %v", err)
	}
	if len(ptrs) != 3 {
		t.Errorf("Expected 3 covered pointers, got %d", len(ptrs))
	}
	if len(ranges) != 2 {
		t.Fatalf("Expected 2 coalesced ranges, got %d", len(ranges))
	}
	if ranges[0].offset != PageSize || ranges[0].length != 50 || ranges[0].items != 2 {
		t.Errorf("Expected merged range {4096, 50, 2}, got %+v", ranges[0])
	}
	if ranges[1].offset != 5000 || ranges[1].length != 15 || ranges[1].items != 1 {
		t.Errorf("Expected lone range {5000, 15, 1}, got %+v", ranges[1])
	}
}

// TestPlanReclaimEmpty tests the no-dead-records case
func TestPlanReclaimEmpty(t *testing.T) {
	d := NewDeletedSet()
	ranges, ptrs, err := d.planReclaim(0, func(uint64) (uint64, error) {
		t.Fatal("sizeOf should not be called")
		return 0, nil
	})
	if err != nil || ranges != nil || ptrs != nil {
		t.Errorf("Expected empty plan, got %v %v %v", ranges, ptrs, err)
	}
}
