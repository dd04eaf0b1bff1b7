// Package device - file-backed device implementation.
// A regular file is the common deployment target; the file is created at a
// fixed size and never grows, mirroring how the engine would sit on a raw
// partition.
package device

import (
	"os"
	"sync"

	"github.com/XavilPergis/StrikingDB/pkg/errors"
)

// File is a Device backed by a regular file. *os.File is safe for
// concurrent ReadAt/WriteAt, so only lifecycle state needs guarding.
type File struct {
	mu       sync.RWMutex
	file     *os.File
	capacity uint64
	closed   bool
}

// CreateFile creates (or truncates) a file of exactly capacity bytes and
// opens it as a device. The file is sparse where the filesystem allows it.
func CreateFile(path string, capacity uint64) (*File, error) {
	if capacity == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "device capacity must be nonzero")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIo, "failed to create device file").
			WithContext("path", path)
	}

	if err := file.Truncate(int64(capacity)); err != nil {
		file.Close()
		return nil, errors.Wrap(err, errors.ErrCodeIo, "failed to size device file").
			WithContext("path", path).
			WithContext("capacity", capacity)
	}

	return &File{file: file, capacity: capacity}, nil
}

// OpenFile opens an existing file as a device. Capacity is taken from the
// file size.
func OpenFile(path string) (*File, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeIo, "failed to open device file").
			WithContext("path", path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, errors.ErrCodeIo, "failed to stat device file").
			WithContext("path", path)
	}

	return &File{file: file, capacity: uint64(info.Size())}, nil
}

// ReadAt reads from the file at the given offset.
func (f *File) ReadAt(offset uint64, buf []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return errClosed()
	}
	if err := checkBounds(f.capacity, offset, uint64(len(buf))); err != nil {
		return err
	}

	if _, err := f.file.ReadAt(buf, int64(offset)); err != nil {
		return errors.Wrap(err, errors.ErrCodeIo, "device read failed").
			WithContext("offset", offset).
			WithContext("length", len(buf))
	}
	return nil
}

// WriteAt writes to the file at the given offset.
func (f *File) WriteAt(offset uint64, buf []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return errClosed()
	}
	if err := checkBounds(f.capacity, offset, uint64(len(buf))); err != nil {
		return err
	}

	if _, err := f.file.WriteAt(buf, int64(offset)); err != nil {
		return errors.Wrap(err, errors.ErrCodeIo, "device write failed").
			WithContext("offset", offset).
			WithContext("length", len(buf))
	}
	return nil
}

// Trim zero-fills the range. A raw block device would receive a discard
// command instead; for a regular file, zeroing keeps replay semantics
// identical across backends.
func (f *File) Trim(offset uint64, length uint64) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return errClosed()
	}
	if err := checkBounds(f.capacity, offset, length); err != nil {
		return err
	}

	// Bounded scratch buffer so huge trims do not allocate huge slices.
	const chunk = 1 << 20
	zeros := make([]byte, min64(length, chunk))
	for length > 0 {
		n := min64(length, chunk)
		if _, err := f.file.WriteAt(zeros[:n], int64(offset)); err != nil {
			return errors.Wrap(err, errors.ErrCodeIo, "device trim failed").
				WithContext("offset", offset)
		}
		offset += n
		length -= n
	}
	return nil
}

// Capacity returns the fixed file size.
func (f *File) Capacity() uint64 {
	return f.capacity
}

// Sync flushes the file to stable storage.
func (f *File) Sync() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return errClosed()
	}
	if err := f.file.Sync(); err != nil {
		return errors.Wrap(err, errors.ErrCodeIo, "device sync failed")
	}
	return nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.file.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeIo, "device close failed")
	}
	return nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
