// Package storage - strand replay.
// Replay walks every record in a strand from the start of its data region
// to the write frontier, in write order. It is the recovery path when no
// checkpoint is available: the volume feeds each record through the same
// insert logic live traffic uses, reproducing the index a checkpoint
// would have captured.
package storage

import (
	"encoding/binary"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// replayChunkSize is the read-ahead window. Large enough to always hold a
// maximum-size frame plus the next length prefix.
const replayChunkSize = 128 * 1024

// replayIterator yields (offset, item) pairs lazily. It is restartable:
// a fresh iterator from the same strand replays the identical sequence.
//
// Usage follows the bufio.Scanner shape:
//
//	it := s.replay()
//	for it.next() {
//	    off, item := it.record()
//	    ...
//	}
//	if err := it.err(); err != nil { ... }
type replayIterator struct {
	s   *strand
	pos uint64 // strand-local offset of the next undecoded byte
	end uint64 // write frontier at iterator creation

	win      []byte // read-ahead window
	winStart uint64 // strand-local offset of win[0]

	curOff  uint64
	curItem Item
	failure error
	zeroed  bool
	done    bool
}

// replay creates an iterator over every record currently in the strand.
func (s *strand) replay() *replayIterator {
	return &replayIterator{
		s:   s,
		pos: PageSize,
		end: s.offset.Load(),
	}
}

// replayToCapacity scans past the recorded frontier to the end of the
// strand region. Recovery uses this after a crash, when the persisted
// offset may understate how much data was actually appended; the scan
// stops at the zeroed tail instead.
func (s *strand) replayToCapacity() *replayIterator {
	return &replayIterator{
		s:   s,
		pos: PageSize,
		end: s.capacity,
	}
}

// next advances to the next item record, transparently skipping embedded
// checkpoint records. It stops at the frontier, at a zeroed tail, or at
// the first malformed record; the latter is reported through err().
func (it *replayIterator) next() bool {
	for !it.done {
		if it.pos >= it.end {
			it.done = true
			return false
		}

		w, err := it.window(itemLenSize)
		if err != nil {
			it.fail(err)
			return false
		}

		keyLen := uint64(binary.LittleEndian.Uint16(w))
		switch {
		case keyLen == 0:
			// Zero bytes: a trimmed hole or the never-written tail.
			// Replay cannot know the hole's length, so the rest of the
			// strand is unreachable by scan. Not corruption; the
			// frontier simply stops here.
			it.zeroed = true
			it.done = true
			return false

		case keyLen > MaxKeyLen:
			// Either an embedded checkpoint record or corruption.
			skipped, err := it.skipStateRecord()
			if err != nil {
				it.fail(err)
				return false
			}
			if !skipped {
				it.fail(errors.NewCorruptRecordError("record declares oversized key").
					WithContext("offset", it.pos).
					WithContext("keyLen", keyLen))
				return false
			}

		default:
			w, err := it.window(itemLenSize + keyLen + itemLenSize)
			if err != nil {
				it.fail(err)
				return false
			}
			valLen := uint64(binary.LittleEndian.Uint16(w[itemLenSize+keyLen:]))

			frame := itemLenSize + keyLen + itemLenSize + valLen
			w, err = it.window(frame)
			if err != nil {
				it.fail(err)
				return false
			}

			item, consumed, err := decodeItem(w[:frame])
			if err != nil {
				it.fail(err)
				return false
			}

			// Detach from the window before it is refilled.
			it.curItem = Item{
				Key:   append([]byte(nil), item.Key...),
				Value: append([]byte(nil), item.Value...),
			}
			it.curOff = it.pos
			it.pos += consumed
			return true
		}
	}
	return false
}

// record returns the offset and item produced by the last next().
func (it *replayIterator) record() (uint64, Item) {
	return it.curOff, it.curItem
}

// err returns the corruption that stopped replay early, or nil after a
// clean run to the frontier or a zeroed-tail stop.
func (it *replayIterator) err() error {
	return it.failure
}

// zeroedTail reports whether the scan ended at unwritten or trimmed
// space rather than the frontier.
func (it *replayIterator) zeroedTail() bool {
	return it.zeroed
}

// frontier returns the strand-local offset replay reached: the end of the
// last good record, which is where a scan-based recovery resumes
// appending.
func (it *replayIterator) frontier() uint64 {
	return it.pos
}

// skipStateRecord checks for a checkpoint record at the current position
// and skips it. Returns false when the bytes are not a state record.
func (it *replayIterator) skipStateRecord() (bool, error) {
	if it.end-it.pos < stateFrameHeaderSize {
		return false, nil
	}
	w, err := it.window(stateFrameHeaderSize)
	if err != nil {
		return false, err
	}
	if binary.LittleEndian.Uint64(w) != stateMagic {
		return false, nil
	}

	payloadLen := binary.LittleEndian.Uint64(w[8:])
	total := stateFrameHeaderSize + payloadLen
	if payloadLen > it.end-it.pos-stateFrameHeaderSize {
		return false, errors.NewCorruptRecordError("checkpoint record runs past strand frontier").
			WithContext("offset", it.pos).
			WithContext("payloadLen", payloadLen)
	}

	it.pos += total
	return true, nil
}

// window ensures at least need bytes starting at it.pos are buffered and
// returns the slice beginning there. need never exceeds a frame plus the
// state header, both far below the chunk size.
func (it *replayIterator) window(need uint64) ([]byte, error) {
	if it.pos+need > it.end {
		return nil, errors.NewCorruptRecordError("record truncated at strand frontier").
			WithContext("offset", it.pos)
	}

	have := uint64(0)
	if it.pos >= it.winStart {
		covered := it.winStart + uint64(len(it.win))
		if covered > it.pos {
			have = covered - it.pos
		}
	}
	if have >= need {
		return it.win[it.pos-it.winStart:], nil
	}

	size := uint64(replayChunkSize)
	if size > it.end-it.pos {
		size = it.end - it.pos
	}
	buf := make([]byte, size)
	if err := it.s.readAt(it.pos, buf); err != nil {
		return nil, err
	}
	it.win = buf
	it.winStart = it.pos
	return it.win, nil
}

// fail records the terminal error and finishes iteration.
func (it *replayIterator) fail(err error) {
	it.failure = err
	it.done = true
}
