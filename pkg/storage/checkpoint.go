// Package storage - checkpoint codec.
// The Datastore State is the pairing (index, deleted set) persisted as a
// single record at clean close and consumed at open. The payload is
// serialized with bintly; the record is framed as state magic (8 bytes) +
// payload length (8 bytes) + payload, and the magic's low 16 bits can
// never be mistaken for a valid key length during replay.
package storage

import (
	"encoding/binary"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
	"github.com/viant/bintly"
)

// stateFrameHeaderSize covers the magic and the payload length.
const stateFrameHeaderSize = 16

// DatastoreState is the serializable snapshot of the index and the
// deletion tracker.
type DatastoreState struct {
	Entries []IndexEntry  // ordered by key, no duplicates
	Deleted []DiskPointer // ordered, no duplicates
}

// EncodeBinary writes the state payload: inner signature, then the index
// entries, then the deleted pointers.
func (st *DatastoreState) EncodeBinary(stream *bintly.Writer) error {
	stream.Uint64(stateMagic)

	stream.Int(len(st.Entries))
	for _, entry := range st.Entries {
		stream.String(entry.Key)
		stream.Uint64(uint64(entry.Pointer))
	}

	stream.Int(len(st.Deleted))
	for _, ptr := range st.Deleted {
		stream.Uint64(uint64(ptr))
	}
	return nil
}

// DecodeBinary reads the state payload and validates its structure:
// signature match, no duplicate keys, no duplicate pointers.
func (st *DatastoreState) DecodeBinary(stream *bintly.Reader) error {
	var signature uint64
	stream.Uint64(&signature)
	if signature != stateMagic {
		return errors.New(errors.ErrCodeCorruptCheckpoint, "datastore state signature mismatch")
	}

	var entryCount int
	stream.Int(&entryCount)
	if entryCount < 0 {
		return errors.New(errors.ErrCodeCorruptCheckpoint, "datastore state declares negative entry count")
	}

	seen := make(map[string]struct{}, entryCount)
	st.Entries = make([]IndexEntry, 0, entryCount)
	for i := 0; i < entryCount; i++ {
		var entry IndexEntry
		var raw uint64
		stream.String(&entry.Key)
		stream.Uint64(&raw)
		entry.Pointer = DiskPointer(raw)

		if _, dup := seen[entry.Key]; dup {
			return errors.New(errors.ErrCodeCorruptCheckpoint, "duplicate key in datastore state index")
		}
		seen[entry.Key] = struct{}{}
		st.Entries = append(st.Entries, entry)
	}

	var deletedCount int
	stream.Int(&deletedCount)
	if deletedCount < 0 {
		return errors.New(errors.ErrCodeCorruptCheckpoint, "datastore state declares negative deleted count")
	}

	seenPtrs := make(map[DiskPointer]struct{}, deletedCount)
	st.Deleted = make([]DiskPointer, 0, deletedCount)
	for i := 0; i < deletedCount; i++ {
		var raw uint64
		stream.Uint64(&raw)
		ptr := DiskPointer(raw)

		if _, dup := seenPtrs[ptr]; dup {
			return errors.New(errors.ErrCodeCorruptCheckpoint, "duplicate pointer in datastore state deleted set")
		}
		seenPtrs[ptr] = struct{}{}
		st.Deleted = append(st.Deleted, ptr)
	}

	return nil
}

var stateWriters = bintly.NewWriters()
var stateReaders = bintly.NewReaders()

// encodeStateFrame serializes the state and wraps it in the on-disk
// frame.
func encodeStateFrame(st *DatastoreState) ([]byte, error) {
	writer := stateWriters.Get()
	defer stateWriters.Put(writer)

	if err := st.EncodeBinary(writer); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to serialize datastore state")
	}
	payload := writer.Bytes()

	frame := make([]byte, stateFrameHeaderSize+len(payload))
	binary.LittleEndian.PutUint64(frame[0:], stateMagic)
	binary.LittleEndian.PutUint64(frame[8:], uint64(len(payload)))
	copy(frame[stateFrameHeaderSize:], payload)
	return frame, nil
}

// decodeStatePayload deserializes a state payload read back from a
// strand.
func decodeStatePayload(payload []byte) (*DatastoreState, error) {
	reader := stateReaders.Get()
	defer stateReaders.Put(reader)

	if err := reader.FromBytes(payload); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCorruptCheckpoint, "failed to deserialize datastore state")
	}

	state := &DatastoreState{}
	if err := state.DecodeBinary(reader); err != nil {
		return nil, err
	}
	return state, nil
}

// readStateFrame reads and validates the checkpoint record at a
// strand-local offset.
func readStateFrame(s *strand, local uint64) (*DatastoreState, error) {
	end := s.offset.Load()
	if local < PageSize || local+stateFrameHeaderSize > end {
		return nil, errors.New(errors.ErrCodeCorruptCheckpoint, "checkpoint pointer is outside the written range").
			WithContext("strand", s.id).
			WithContext("offset", local)
	}

	header := make([]byte, stateFrameHeaderSize)
	if err := s.readAt(local, header); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint64(header[0:]) != stateMagic {
		return nil, errors.New(errors.ErrCodeCorruptCheckpoint, "checkpoint record signature mismatch").
			WithContext("strand", s.id).
			WithContext("offset", local)
	}

	payloadLen := binary.LittleEndian.Uint64(header[8:])
	if payloadLen > end-local-stateFrameHeaderSize {
		return nil, errors.New(errors.ErrCodeCorruptCheckpoint, "checkpoint record runs past strand frontier").
			WithContext("payloadLen", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if err := s.readAt(local+stateFrameHeaderSize, payload); err != nil {
		return nil, err
	}

	return decodeStatePayload(payload)
}
