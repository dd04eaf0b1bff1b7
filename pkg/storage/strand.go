// Package storage - strand implementation.
// A strand is one independent, capacity-bounded, append-only log segment.
// Appends to a strand are strictly serialized; reads run concurrently with
// each other and with appends, relying on the offset being published only
// after the bytes below it are durable in the device.
package storage

import (
	"sync"
	"sync/atomic"

	"github.com/XavilPergis/StrikingDB/pkg/device"
	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// strand owns a contiguous page-aligned region of the device. The first
// page of the region is the strand header; item data begins at local
// offset PageSize and the write offset only ever advances.
type strand struct {
	dev      device.Device
	id       uint16
	start    uint64 // device offset of the strand's header page
	capacity uint64 // total region size including the header page

	// offset is the strand-local offset of the next append. It is
	// advanced only after the covered bytes are written, so any reader
	// that loads it first never observes partially written data.
	offset atomic.Uint64

	// appendMu serializes writers; a strand accepts one append at a time.
	appendMu sync.Mutex

	statsMu sync.Mutex
	stats   StrandStats
}

// newStrand formats a fresh strand: writes its header page and starts the
// write offset just past it.
func newStrand(dev device.Device, id uint16, start, capacity uint64) (*strand, error) {
	s := &strand{
		dev:      dev,
		id:       id,
		start:    start,
		capacity: capacity,
	}
	s.offset.Store(PageSize)

	if err := s.flushHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

// openStrand reads and validates an existing strand header.
func openStrand(dev device.Device, id uint16, start, capacity uint64) (*strand, error) {
	page := make([]byte, PageSize)
	if err := dev.ReadAt(start, page); err != nil {
		return nil, err
	}

	hdr, err := decodeStrandHeader(page)
	if err != nil {
		return nil, err
	}
	if hdr.ID != uint32(id) || hdr.Capacity != capacity {
		return nil, errors.NewCorruptRecordError("strand header does not match volume geometry").
			WithContext("headerID", hdr.ID).
			WithContext("expectedID", id).
			WithContext("headerCapacity", hdr.Capacity).
			WithContext("expectedCapacity", capacity)
	}

	s := &strand{
		dev:      dev,
		id:       id,
		start:    start,
		capacity: capacity,
		stats:    hdr.Stats,
	}
	s.offset.Store(hdr.Offset)
	return s, nil
}

// remaining returns the free bytes past the write offset.
func (s *strand) remaining() uint64 {
	return s.capacity - s.offset.Load()
}

// snapshotStats copies the counters under the stats lock.
func (s *strand) snapshotStats() StrandStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// markDead moves one item from the valid to the deleted count. Called by
// the volume when a record is superseded or removed; the strand itself
// never talks to the deletion tracker.
func (s *strand) markDead() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.stats.ValidItems > 0 {
		s.stats.ValidItems--
	}
	s.stats.DeletedItems++
}

// noteReplayed counts one record recovered by scan as valid. Superseded
// records are corrected afterwards through markDead.
func (s *strand) noteReplayed() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.ValidItems++
}

// resetItemCounts zeroes the valid/deleted counters before a scan rebuild
// recomputes them. Device-level byte counters survive the rebuild.
func (s *strand) resetItemCounts() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.ValidItems = 0
	s.stats.DeletedItems = 0
}

// setOffset rewinds or advances the in-memory frontier. Only the recovery
// scan calls this, after it has established where valid data ends.
func (s *strand) setOffset(offset uint64) {
	s.offset.Store(offset)
}

// append writes one item frame at the current offset and returns the disk
// pointer addressing the frame start. Fails with StrandFull, leaving the
// offset unchanged, if the frame does not fit.
func (s *strand) append(key, value []byte) (DiskPointer, error) {
	frame, err := encodeItem(key, value)
	if err != nil {
		return NullPointer, err
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	off := s.offset.Load()
	need := uint64(len(frame))
	if need > s.capacity-off {
		return NullPointer, errors.NewStrandFullError(s.id, need, s.capacity-off)
	}

	if err := s.dev.WriteAt(s.start+off, frame); err != nil {
		return NullPointer, err
	}

	s.statsMu.Lock()
	s.stats.WrittenBytes += need
	s.stats.LogicalWrittenBytes += uint64(len(key) + len(value))
	s.stats.ValidItems++
	s.statsMu.Unlock()

	// Publish the data before publishing the new offset.
	s.offset.Store(off + need)
	return newPointer(s.id, off), nil
}

// appendRaw writes a pre-framed record (the checkpoint record) at the
// current offset. It does not touch the item counters.
func (s *strand) appendRaw(frame []byte) (DiskPointer, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	off := s.offset.Load()
	need := uint64(len(frame))
	if need > s.capacity-off {
		return NullPointer, errors.NewStrandFullError(s.id, need, s.capacity-off)
	}

	if err := s.dev.WriteAt(s.start+off, frame); err != nil {
		return NullPointer, err
	}

	s.statsMu.Lock()
	s.stats.WrittenBytes += need
	s.statsMu.Unlock()

	s.offset.Store(off + need)
	return newPointer(s.id, off), nil
}

// readAt reads raw bytes at a strand-local offset, counting device bytes.
func (s *strand) readAt(local uint64, buf []byte) error {
	if err := s.dev.ReadAt(s.start+local, buf); err != nil {
		return err
	}
	s.statsMu.Lock()
	s.stats.ReadBytes += uint64(len(buf))
	s.statsMu.Unlock()
	return nil
}

// readItem decodes the item frame starting at a strand-local offset.
// Fails with OutOfBounds when the offset is not inside the written range
// and with CorruptRecord when the framing is malformed.
func (s *strand) readItem(local uint64) (Item, error) {
	end := s.offset.Load()
	if local < PageSize || local >= end {
		return Item{}, errors.New(errors.ErrCodeOutOfBounds, "read offset is outside the written range").
			WithContext("strand", s.id).
			WithContext("offset", local).
			WithContext("frontier", end)
	}
	span := end - local

	var lenBuf [itemLenSize]byte
	if span < itemLenSize {
		return Item{}, errors.NewCorruptRecordError("record truncated before key length")
	}
	if err := s.readAt(local, lenBuf[:]); err != nil {
		return Item{}, err
	}
	keyLen := uint64(lenBuf[0]) | uint64(lenBuf[1])<<8
	if keyLen == 0 || keyLen > MaxKeyLen {
		return Item{}, errors.NewCorruptRecordError("record declares invalid key length").
			WithContext("keyLen", keyLen)
	}
	if span < itemLenSize+keyLen+itemLenSize {
		return Item{}, errors.NewCorruptRecordError("key runs past strand bounds")
	}

	// Key plus the value length prefix in one read.
	keyBuf := make([]byte, keyLen+itemLenSize)
	if err := s.readAt(local+itemLenSize, keyBuf); err != nil {
		return Item{}, err
	}
	key := keyBuf[:keyLen]
	valLen := uint64(keyBuf[keyLen]) | uint64(keyBuf[keyLen+1])<<8
	if span < itemLenSize+keyLen+itemLenSize+valLen {
		return Item{}, errors.NewCorruptRecordError("value runs past strand bounds")
	}

	value := make([]byte, valLen)
	if valLen > 0 {
		if err := s.readAt(local+itemLenSize+keyLen+itemLenSize, value); err != nil {
			return Item{}, err
		}
	}

	s.statsMu.Lock()
	s.stats.LogicalReadBytes += keyLen + valLen
	s.statsMu.Unlock()

	return Item{Key: key, Value: value}, nil
}

// frameSize returns the total frame size of the record at a strand-local
// offset without reading its payload. Used by reclaim planning.
func (s *strand) frameSize(local uint64) (uint64, error) {
	end := s.offset.Load()
	if local < PageSize || local >= end {
		return 0, errors.New(errors.ErrCodeOutOfBounds, "record offset is outside the written range").
			WithContext("strand", s.id).
			WithContext("offset", local)
	}

	var lenBuf [itemLenSize]byte
	if err := s.readAt(local, lenBuf[:]); err != nil {
		return 0, err
	}
	keyLen := uint64(lenBuf[0]) | uint64(lenBuf[1])<<8
	if keyLen == 0 || keyLen > MaxKeyLen {
		return 0, errors.NewCorruptRecordError("record declares invalid key length").
			WithContext("keyLen", keyLen)
	}

	if err := s.readAt(local+itemLenSize+keyLen, lenBuf[:]); err != nil {
		return 0, err
	}
	valLen := uint64(lenBuf[0]) | uint64(lenBuf[1])<<8

	size := itemLenSize + keyLen + itemLenSize + valLen
	if local+size > end {
		return 0, errors.NewCorruptRecordError("record runs past strand frontier")
	}
	return size, nil
}

// deadRange is a contiguous byte range of dead records within a strand.
type deadRange struct {
	offset uint64 // strand-local
	length uint64
	items  uint64 // records covered by the range
}

// reclaim trims the given dead ranges at the device level and updates the
// trimmed/deleted counters. The write offset never moves: space before
// the frontier is not reused, strands are pure append logs.
func (s *strand) reclaim(ranges []deadRange) error {
	end := s.offset.Load()
	for _, r := range ranges {
		if r.offset < PageSize || r.offset+r.length > end {
			return errors.New(errors.ErrCodeOutOfBounds, "reclaim range is outside the written range").
				WithContext("strand", s.id).
				WithContext("offset", r.offset).
				WithContext("length", r.length)
		}
	}

	for _, r := range ranges {
		if err := s.dev.Trim(s.start+r.offset, r.length); err != nil {
			return err
		}
		s.statsMu.Lock()
		s.stats.TrimmedBytes += r.length
		if s.stats.DeletedItems >= r.items {
			s.stats.DeletedItems -= r.items
		} else {
			s.stats.DeletedItems = 0
		}
		s.statsMu.Unlock()
	}
	return nil
}

// flushHeader persists the strand header page.
func (s *strand) flushHeader() error {
	hdr := strandHeader{
		ID:       uint32(s.id),
		Capacity: s.capacity,
		Offset:   s.offset.Load(),
		Stats:    s.snapshotStats(),
	}

	page := hdr.encode()
	if err := s.dev.WriteAt(s.start, page); err != nil {
		return err
	}

	s.statsMu.Lock()
	s.stats.WrittenBytes += PageSize
	s.statsMu.Unlock()
	return nil
}
