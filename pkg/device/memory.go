// Package device - RAM-backed device implementation.
// Used by tests and for ephemeral stores that never need to survive a
// process restart.
package device

import (
	"sync"
)

// Memory is a Device backed by a byte slice. Reads and writes may run
// concurrently; the engine above serializes writes to any given range, so
// a read-write lock around the slice is sufficient here.
type Memory struct {
	mu     sync.RWMutex
	data   []byte
	closed bool
}

// NewMemory creates a zero-filled memory device of the given capacity.
func NewMemory(capacity uint64) *Memory {
	return &Memory{data: make([]byte, capacity)}
}

// ReadAt copies bytes out of the backing slice.
func (m *Memory) ReadAt(offset uint64, buf []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errClosed()
	}
	if err := checkBounds(uint64(len(m.data)), offset, uint64(len(buf))); err != nil {
		return err
	}

	copy(buf, m.data[offset:offset+uint64(len(buf))])
	return nil
}

// WriteAt copies bytes into the backing slice.
func (m *Memory) WriteAt(offset uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed()
	}
	if err := checkBounds(uint64(len(m.data)), offset, uint64(len(buf))); err != nil {
		return err
	}

	copy(m.data[offset:offset+uint64(len(buf))], buf)
	return nil
}

// Trim zeroes the range, matching what an SSD controller would expose for
// a discarded block.
func (m *Memory) Trim(offset uint64, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errClosed()
	}
	if err := checkBounds(uint64(len(m.data)), offset, length); err != nil {
		return err
	}

	region := m.data[offset : offset+length]
	for i := range region {
		region[i] = 0
	}
	return nil
}

// Capacity returns the size of the backing slice.
func (m *Memory) Capacity() uint64 {
	return uint64(len(m.data))
}

// Sync is a no-op for memory devices.
func (m *Memory) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return errClosed()
	}
	return nil
}

// Close marks the device unusable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
