// Package device provides the block I/O backend consumed by the storage
// engine. A Device is a fixed-capacity byte range supporting positioned
// reads and writes plus trim hints; the engine never touches the operating
// system directly, which keeps the core testable against an in-memory
// implementation.
package device

import (
	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// Device is the narrow interface between the storage engine and whatever
// actually holds the bytes (a regular file, a raw block device, or memory).
// All operations are synchronous: they complete or fail before returning.
type Device interface {
	// ReadAt fills buf with the bytes at the given device offset.
	ReadAt(offset uint64, buf []byte) error

	// WriteAt stores buf at the given device offset.
	WriteAt(offset uint64, buf []byte) error

	// Trim hints that the given byte range no longer holds live data and
	// may be erased or reused at the device level. Implementations may
	// treat it as a no-op; the engine never reads trimmed ranges.
	Trim(offset uint64, length uint64) error

	// Capacity returns the fixed size of the device in bytes.
	Capacity() uint64

	// Sync flushes any buffered writes to stable storage.
	Sync() error

	// Close releases the device. The device must not be used afterwards.
	Close() error
}

// errClosed reports use of a device after Close.
func errClosed() error {
	return errors.New(errors.ErrCodeIo, "device is closed")
}

// checkBounds validates that [offset, offset+length) lies inside a device
// of the given capacity.
func checkBounds(capacity, offset, length uint64) error {
	if offset > capacity || length > capacity-offset {
		return errors.New(errors.ErrCodeIo, "access beyond device capacity").
			WithContext("offset", offset).
			WithContext("length", length).
			WithContext("capacity", capacity)
	}
	return nil
}
