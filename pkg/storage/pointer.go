// Package storage - disk pointer encoding.
// A DiskPointer packs a strand id and a strand-local byte offset into one
// opaque 64-bit address: 16 high bits of strand id, 48 low bits of offset.
// The all-zero value is reserved as "none"; because every strand's first
// page holds its header, no valid item ever sits at local offset zero.
package storage

import (
	"fmt"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// DiskPointer is an opaque 64-bit item address.
type DiskPointer uint64

// NullPointer is the reserved "absent" value.
const NullPointer DiskPointer = 0

const (
	pointerOffsetBits = 48
	pointerOffsetMask = (uint64(1) << pointerOffsetBits) - 1
)

// newPointer packs a strand id and local offset. Offsets above 48 bits are
// unrepresentable; strand capacities are far below that bound.
func newPointer(strandID uint16, offset uint64) DiskPointer {
	return DiskPointer(uint64(strandID)<<pointerOffsetBits | offset&pointerOffsetMask)
}

// StrandID returns the strand the pointer addresses.
func (p DiskPointer) StrandID() uint16 {
	return uint16(uint64(p) >> pointerOffsetBits)
}

// Offset returns the strand-local byte offset.
func (p DiskPointer) Offset() uint64 {
	return uint64(p) & pointerOffsetMask
}

// IsNull reports whether the pointer is the reserved "none" value.
func (p DiskPointer) IsNull() bool {
	return p == NullPointer
}

// String formats the pointer for logs.
func (p DiskPointer) String() string {
	if p.IsNull() {
		return "ptr(null)"
	}
	return fmt.Sprintf("ptr(%d:0x%x)", p.StrandID(), p.Offset())
}

// decodePointer validates a raw pointer against the open volume's
// geometry. The null value and strand ids outside [0, strandCount) fail
// with InvalidPointer; offset bounds are validated by the owning strand.
func decodePointer(raw uint64, strandCount int) (DiskPointer, error) {
	p := DiskPointer(raw)
	if p.IsNull() {
		return NullPointer, errors.NewInvalidPointerError(raw)
	}
	if int(p.StrandID()) >= strandCount {
		return NullPointer, errors.NewInvalidPointerError(raw).
			WithContext("strands", strandCount)
	}
	return p, nil
}
