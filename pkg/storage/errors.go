// Package storage - sentinel errors for the common control-flow cases.
// Structural failures carry structured errors from pkg/errors; these
// sentinels exist for the results callers routinely branch on with
// errors.Is.
package storage

import "errors"

var (
	// ErrKeyNotFound is returned when a requested key doesn't exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyExists is returned by Insert when the key is already present.
	ErrKeyExists = errors.New("key already exists")

	// ErrVolumeClosed is returned when operating on a closed volume.
	ErrVolumeClosed = errors.New("volume is closed")

	// ErrOutOfSpace is returned when no strand can fit an append.
	ErrOutOfSpace = errors.New("volume is out of space")
)
