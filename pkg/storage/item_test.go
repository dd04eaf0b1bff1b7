// Unit tests for the item codec
package storage

import (
	"bytes"
	"testing"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// TestEncodeDecodeItem tests the frame round trip
func TestEncodeDecodeItem(t *testing.T) {
	key := []byte("user:123")
	value := []byte("the payload")

	frame, err := encodeItem(key, value)
	if err != nil {
		t.Fatalf("encodeItem failed: %v", err)
	}
	if uint64(len(frame)) != encodedItemSize(key, value) {
		t.Errorf("Expected frame size %d, got %d", encodedItemSize(key, value), len(frame))
	}

	item, consumed, err := decodeItem(frame)
	if err != nil {
		t.Fatalf("decodeItem failed: %v", err)
	}
	if consumed != uint64(len(frame)) {
		t.Errorf("Expected %d bytes consumed, got %d", len(frame), consumed)
	}
	if !bytes.Equal(item.Key, key) {
		t.Errorf("Expected key %q, got %q", key, item.Key)
	}
	if !bytes.Equal(item.Value, value) {
		t.Errorf("Expected value %q, got %q", value, item.Value)
	}
}

// TestEncodeEmptyValue tests that an empty value is a valid frame
func TestEncodeEmptyValue(t *testing.T) {
	frame, err := encodeItem([]byte("k"), nil)
	if err != nil {
		t.Fatalf("encodeItem failed: %v", err)
	}

	item, _, err := decodeItem(frame)
	if err != nil {
		t.Fatalf("decodeItem failed: %v", err)
	}
	if len(item.Value) != 0 {
		t.Errorf("Expected empty value, got %q", item.Value)
	}
}

// TestDecodeConsumesOnlyOneFrame tests decoding from a longer span
func TestDecodeConsumesOnlyOneFrame(t *testing.T) {
	first, _ := encodeItem([]byte("a"), []byte("1"))
	second, _ := encodeItem([]byte("b"), []byte("2"))
	span := append(append([]byte(nil), first...), second...)

	item, consumed, err := decodeItem(span)
	if err != nil {
		t.Fatalf("decodeItem failed: %v", err)
	}
	if consumed != uint64(len(first)) {
		t.Errorf("Expected %d bytes consumed, got %d", len(first), consumed)
	}
	if !bytes.Equal(item.Key, []byte("a")) {
		t.Errorf("Expected first frame's key, got %q", item.Key)
	}
}

// TestValidateKey tests the key bounds
func TestValidateKey(t *testing.T) {
	if err := validateKey(nil); !errors.IsCode(err, errors.ErrCodeEmptyKey) {
		t.Errorf("Expected EMPTY_KEY for nil key, got %v", err)
	}
	if err := validateKey([]byte{}); !errors.IsCode(err, errors.ErrCodeEmptyKey) {
		t.Errorf("Expected EMPTY_KEY for empty key, got %v", err)
	}
	if err := validateKey(make([]byte, MaxKeyLen)); err != nil {
		t.Errorf("Expected max-length key to pass, got %v", err)
	}
	if err := validateKey(make([]byte, MaxKeyLen+1)); !errors.IsCode(err, errors.ErrCodeInvalidKey) {
		t.Errorf("Expected INVALID_KEY for oversized key, got %v", err)
	}
}

// TestValidateValue tests the value bounds
func TestValidateValue(t *testing.T) {
	if err := validateValue(nil); err != nil {
		t.Errorf("Expected nil value to pass, got %v", err)
	}
	if err := validateValue(make([]byte, MaxValueLen)); err != nil {
		t.Errorf("Expected max-length value to pass, got %v", err)
	}
	if err := validateValue(make([]byte, MaxValueLen+1)); !errors.IsCode(err, errors.ErrCodeInvalidValue) {
		t.Errorf("Expected INVALID_VALUE for oversized value, got %v", err)
	}
}

// TestDecodeCorruptFrames tests the malformed framing cases
func TestDecodeCorruptFrames(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty span", nil},
		{"truncated key length", []byte{0x05}},
		{"zero key length", []byte{0x00, 0x00, 0xff, 0xff}},
		{"oversized key length", []byte{0xff, 0xff, 0x00, 0x00}},
		{"key past span", []byte{0x08, 0x00, 'a', 'b'}},
		{"value past span", []byte{0x01, 0x00, 'k', 0xff, 0x00, 'v'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeItem(tt.buf)
			if !errors.IsCode(err, errors.ErrCodeCorruptRecord) {
				t.Errorf("Expected CORRUPT_RECORD, got %v", err)
			}
		})
	}
}
