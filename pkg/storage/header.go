// Package storage - on-disk header codecs.
// The volume header lives in the first page of the device; each strand
// header lives in the first page of its strand's region. Layouts are
// little-endian and bit-exact:
//
//	volume header: magic(8) version(3x1) strandCount(4) checkpointPtr(8)
//	strand header: magic(8) id(4) capacity(8) offset(8) stats(7x8)
package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

const (
	volumeHeaderSize = 8 + 3 + 4 + 8
	strandHeaderSize = 8 + 4 + 8 + 8 + 7*8
)

// volumeHeader is the in-memory form of the device's first page.
type volumeHeader struct {
	Major      uint8
	Minor      uint8
	Patch      uint8
	Strands    uint32
	Checkpoint DiskPointer // NullPointer means "no checkpoint, rebuild required"
}

// newVolumeHeader constructs a header stamped with the engine version and
// no checkpoint.
func newVolumeHeader(strands uint32) volumeHeader {
	return volumeHeader{
		Major:   VersionMajor,
		Minor:   VersionMinor,
		Patch:   VersionPatch,
		Strands: strands,
	}
}

// version formats the header's version triple.
func (h volumeHeader) version() string {
	return fmt.Sprintf("%d.%d.%d", h.Major, h.Minor, h.Patch)
}

// engineVersion formats the running engine's version triple.
func engineVersion() string {
	return fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionPatch)
}

// encode writes the header into a page-sized buffer.
func (h volumeHeader) encode() []byte {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint64(buf[0:], volumeMagic)
	buf[8] = h.Major
	buf[9] = h.Minor
	buf[10] = h.Patch
	binary.LittleEndian.PutUint32(buf[11:], h.Strands)
	binary.LittleEndian.PutUint64(buf[15:], uint64(h.Checkpoint))
	return buf
}

// decodeVolumeHeader validates the signature and version compatibility:
// the major must match exactly and the on-disk minor/patch must not be
// newer than the running engine.
func decodeVolumeHeader(buf []byte) (volumeHeader, error) {
	if len(buf) < volumeHeaderSize {
		return volumeHeader{}, errors.NewCorruptRecordError("volume header truncated")
	}
	if binary.LittleEndian.Uint64(buf[0:]) != volumeMagic {
		return volumeHeader{}, errors.NewSignatureMismatchError("volume header")
	}

	h := volumeHeader{
		Major:      buf[8],
		Minor:      buf[9],
		Patch:      buf[10],
		Strands:    binary.LittleEndian.Uint32(buf[11:]),
		Checkpoint: DiskPointer(binary.LittleEndian.Uint64(buf[15:])),
	}

	if h.Major != VersionMajor ||
		h.Minor > VersionMinor ||
		(h.Minor == VersionMinor && h.Patch > VersionPatch) {
		return volumeHeader{}, errors.NewIncompatibleVersionError(h.version(), engineVersion())
	}
	if h.Strands < MinStrands || h.Strands > MaxStrands {
		return volumeHeader{}, errors.NewCorruptRecordError("volume header declares invalid strand count").
			WithContext("strands", h.Strands)
	}

	return h, nil
}

// strandHeader is the in-memory form of a strand's first page.
type strandHeader struct {
	ID       uint32
	Capacity uint64
	Offset   uint64
	Stats    StrandStats
}

// encode writes the header into a page-sized buffer.
func (h strandHeader) encode() []byte {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint64(buf[0:], strandMagic)
	binary.LittleEndian.PutUint32(buf[8:], h.ID)
	binary.LittleEndian.PutUint64(buf[12:], h.Capacity)
	binary.LittleEndian.PutUint64(buf[20:], h.Offset)

	counters := [7]uint64{
		h.Stats.ReadBytes,
		h.Stats.WrittenBytes,
		h.Stats.TrimmedBytes,
		h.Stats.LogicalReadBytes,
		h.Stats.LogicalWrittenBytes,
		h.Stats.ValidItems,
		h.Stats.DeletedItems,
	}
	for i, c := range counters {
		binary.LittleEndian.PutUint64(buf[28+8*i:], c)
	}
	return buf
}

// decodeStrandHeader validates the signature and basic geometry
// invariants (offset within capacity, data starting past the header
// page).
func decodeStrandHeader(buf []byte) (strandHeader, error) {
	if len(buf) < strandHeaderSize {
		return strandHeader{}, errors.NewCorruptRecordError("strand header truncated")
	}
	if binary.LittleEndian.Uint64(buf[0:]) != strandMagic {
		return strandHeader{}, errors.NewSignatureMismatchError("strand header")
	}

	h := strandHeader{
		ID:       binary.LittleEndian.Uint32(buf[8:]),
		Capacity: binary.LittleEndian.Uint64(buf[12:]),
		Offset:   binary.LittleEndian.Uint64(buf[20:]),
	}
	h.Stats.ReadBytes = binary.LittleEndian.Uint64(buf[28:])
	h.Stats.WrittenBytes = binary.LittleEndian.Uint64(buf[36:])
	h.Stats.TrimmedBytes = binary.LittleEndian.Uint64(buf[44:])
	h.Stats.LogicalReadBytes = binary.LittleEndian.Uint64(buf[52:])
	h.Stats.LogicalWrittenBytes = binary.LittleEndian.Uint64(buf[60:])
	h.Stats.ValidItems = binary.LittleEndian.Uint64(buf[68:])
	h.Stats.DeletedItems = binary.LittleEndian.Uint64(buf[76:])

	if h.Offset < PageSize || h.Offset > h.Capacity {
		return strandHeader{}, errors.NewCorruptRecordError("strand header declares offset outside capacity").
			WithContext("offset", h.Offset).
			WithContext("capacity", h.Capacity)
	}

	return h, nil
}
