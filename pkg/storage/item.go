// Package storage - item codec.
// An item is framed as key length (uint16) + key bytes + value length
// (uint16) + value bytes, little-endian. The frame is self-delimiting, so
// a whole strand can be replayed from a byte span with no external
// context.
package storage

import (
	"encoding/binary"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// Item is one key/value record. The key is immutable once written; a later
// write of the same key supersedes it in the index and the old bytes
// become garbage for the deletion tracker.
type Item struct {
	Key   []byte
	Value []byte
}

// itemLenSize is the width of each length prefix.
const itemLenSize = 2

// encodedItemSize returns the frame size for a key/value pair.
func encodedItemSize(key, value []byte) uint64 {
	return uint64(itemLenSize + len(key) + itemLenSize + len(value))
}

// validateKey enforces the key bounds at the codec boundary.
func validateKey(key []byte) error {
	if len(key) == 0 {
		return errors.NewEmptyKeyError()
	}
	if len(key) > MaxKeyLen {
		return errors.New(errors.ErrCodeInvalidKey, "key exceeds maximum length").
			WithContext("length", len(key)).
			WithContext("max", MaxKeyLen)
	}
	return nil
}

// validateValue enforces the value bounds at the codec boundary.
func validateValue(value []byte) error {
	if len(value) > MaxValueLen {
		return errors.New(errors.ErrCodeInvalidValue, "value exceeds maximum length").
			WithContext("length", len(value)).
			WithContext("max", MaxValueLen)
	}
	return nil
}

// encodeItem produces the self-delimiting frame for a key/value pair.
func encodeItem(key, value []byte) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateValue(value); err != nil {
		return nil, err
	}

	buf := make([]byte, encodedItemSize(key, value))
	pos := 0

	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(key)))
	pos += itemLenSize
	copy(buf[pos:], key)
	pos += len(key)

	binary.LittleEndian.PutUint16(buf[pos:], uint16(len(value)))
	pos += itemLenSize
	copy(buf[pos:], value)

	return buf, nil
}

// decodeItem decodes one frame from the start of buf and reports how many
// bytes it consumed. Declared lengths that run past the span, or a zero
// key length, fail with CorruptRecord. The returned item aliases buf.
func decodeItem(buf []byte) (Item, uint64, error) {
	if len(buf) < itemLenSize {
		return Item{}, 0, errors.NewCorruptRecordError("record truncated before key length")
	}

	keyLen := int(binary.LittleEndian.Uint16(buf))
	if keyLen == 0 {
		return Item{}, 0, errors.NewCorruptRecordError("record declares empty key")
	}
	if keyLen > MaxKeyLen {
		return Item{}, 0, errors.NewCorruptRecordError("record declares oversized key").
			WithContext("keyLen", keyLen)
	}

	pos := itemLenSize
	if len(buf)-pos < keyLen+itemLenSize {
		return Item{}, 0, errors.NewCorruptRecordError("key runs past strand bounds").
			WithContext("keyLen", keyLen).
			WithContext("remaining", len(buf)-pos)
	}
	key := buf[pos : pos+keyLen]
	pos += keyLen

	valLen := int(binary.LittleEndian.Uint16(buf[pos:]))
	pos += itemLenSize
	if len(buf)-pos < valLen {
		return Item{}, 0, errors.NewCorruptRecordError("value runs past strand bounds").
			WithContext("valueLen", valLen).
			WithContext("remaining", len(buf)-pos)
	}
	value := buf[pos : pos+valLen]
	pos += valLen

	return Item{Key: key, Value: value}, uint64(pos), nil
}
