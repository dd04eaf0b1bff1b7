// Unit tests for the device package
package device

import (
	"bytes"
	"path/filepath"
	"testing"
)

// TestMemoryReadWrite tests the basic read/write cycle on a memory device
func TestMemoryReadWrite(t *testing.T) {
	dev := NewMemory(8192)

	if dev.Capacity() != 8192 {
		t.Errorf("Expected capacity 8192, got %d", dev.Capacity())
	}

	payload := []byte("hello strands")
	if err := dev.WriteAt(100, payload); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}

	buf := make([]byte, len(payload))
	if err := dev.ReadAt(100, buf); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Errorf("Expected %q, got %q", payload, buf)
	}
}

// TestMemoryTrim tests that trim zeroes the range and nothing else
func TestMemoryTrim(t *testing.T) {
	dev := NewMemory(4096)

	if err := dev.WriteAt(0, []byte("aaaabbbbcccc")); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := dev.Trim(4, 4); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	buf := make([]byte, 12)
	if err := dev.ReadAt(0, buf); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	expected := []byte("aaaa\x00\x00\x00\x00cccc")
	if !bytes.Equal(buf, expected) {
		t.Errorf("Expected %q after trim, got %q", expected, buf)
	}
}

// TestMemoryBounds tests that out-of-range access fails
func TestMemoryBounds(t *testing.T) {
	dev := NewMemory(1024)

	if err := dev.ReadAt(1020, make([]byte, 8)); err == nil {
		t.Error("Expected error for read past capacity")
	}
	if err := dev.WriteAt(2048, []byte("x")); err == nil {
		t.Error("Expected error for write past capacity")
	}
	if err := dev.Trim(0, 2048); err == nil {
		t.Error("Expected error for trim past capacity")
	}

	// Zero-length access at the very end is in bounds.
	if err := dev.ReadAt(1024, nil); err != nil {
		t.Errorf("Zero-length read at capacity should succeed, got %v", err)
	}
}

// TestMemoryClosed tests that operations fail after close
func TestMemoryClosed(t *testing.T) {
	dev := NewMemory(1024)
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := dev.ReadAt(0, make([]byte, 1)); err == nil {
		t.Error("Expected error reading closed device")
	}
	if err := dev.WriteAt(0, []byte("x")); err == nil {
		t.Error("Expected error writing closed device")
	}
	if err := dev.Sync(); err == nil {
		t.Error("Expected error syncing closed device")
	}
}

// TestFileCreateReopen tests that a file device persists across reopen
func TestFileCreateReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")

	dev, err := CreateFile(path, 16384)
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if dev.Capacity() != 16384 {
		t.Errorf("Expected capacity 16384, got %d", dev.Capacity())
	}

	payload := []byte("survives reopen")
	if err := dev.WriteAt(4096, payload); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer reopened.Close()

	if reopened.Capacity() != 16384 {
		t.Errorf("Expected capacity from file size 16384, got %d", reopened.Capacity())
	}

	buf := make([]byte, len(payload))
	if err := reopened.ReadAt(4096, buf); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Errorf("Expected %q, got %q", payload, buf)
	}
}

// TestFileTrim tests that trim zero-fills on the file backend
func TestFileTrim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")

	dev, err := CreateFile(path, 8192)
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	defer dev.Close()

	if err := dev.WriteAt(0, []byte("abcdefgh")); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if err := dev.Trim(2, 4); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	buf := make([]byte, 8)
	if err := dev.ReadAt(0, buf); err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	expected := []byte("ab\x00\x00\x00\x00gh")
	if !bytes.Equal(buf, expected) {
		t.Errorf("Expected %q after trim, got %q", expected, buf)
	}
}

// TestFileZeroCapacity tests that a zero-size device is rejected
func TestFileZeroCapacity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	if _, err := CreateFile(path, 0); err == nil {
		t.Error("Expected error for zero capacity")
	}
}

// TestFileDoubleClose tests that closing twice is harmless
func TestFileDoubleClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	dev, err := CreateFile(path, 4096)
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
