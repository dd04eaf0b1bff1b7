// Package storage implements the StrikingDB core: a persistent,
// append-only key/value engine for solid-state drives. The device is split
// into a fixed set of independent log segments ("strands") so appends to
// different strands can ride separate SSD I/O queues; an in-memory index
// maps keys to disk pointers and is either checkpointed at clean close or
// rebuilt by replaying the strands.
package storage

import (
	"time"
)

// Engine version. The major number gates on-disk compatibility: a volume
// written by a different major cannot be opened, and a volume whose
// minor/patch is newer than the running engine is rejected too.
const (
	VersionMajor uint8 = 0
	VersionMinor uint8 = 1
	VersionPatch uint8 = 0
)

const (
	// PageSize is the allocation granularity. The volume header owns the
	// first page of the device and every strand header owns the first
	// page of its region, so a strand-local item offset is always at
	// least PageSize and the all-zero disk pointer never addresses an
	// item.
	PageSize = 4096

	// MaxKeyLen bounds keys; key length is framed as a uint16 and values
	// above MaxKeyLen distinguish item records from checkpoint records
	// during replay.
	MaxKeyLen = 512

	// MaxValueLen bounds values to what a uint16 length can frame.
	MaxValueLen = 65535

	// MinStrands and MaxStrands bound the strand count; 16 pointer bits
	// are reserved for the strand id.
	MinStrands = 1
	MaxStrands = 65535
)

// Signature magics for the persisted structures. The state magic's low 16
// bits decode as a key length far above MaxKeyLen, which is how replay
// recognizes a checkpoint record embedded in a strand.
const (
	volumeMagic uint64 = 0x864d26e37a418b16
	strandMagic uint64 = 0x582f047b5ed83a7f
	stateMagic  uint64 = 0xc3a51db57a7ef00d
)

// VolumeConfig holds configuration parameters for a volume.
type VolumeConfig struct {
	// StrandCount is the number of independent append logs the device is
	// divided into. Fixed at creation.
	StrandCount int

	// ReadCacheSize is the number of key/value entries the LRU read
	// cache holds. Zero disables the cache.
	ReadCacheSize int

	// ReclaimThreshold is the deleted/valid item ratio above which a put
	// opportunistically triggers a reclaim pass on the strand it wrote
	// to. Zero disables opportunistic reclamation; explicit
	// ReclaimPass calls still work.
	ReclaimThreshold float64

	// Truncate trims the whole device and reformats it on open.
	Truncate bool

	// Reindex forces a full-scan rebuild even when the header carries a
	// valid checkpoint pointer.
	Reindex bool

	// SyncOnPut forces a device sync after every append. Off by default;
	// close and checkpoint always sync.
	SyncOnPut bool
}

// DefaultVolumeConfig returns reasonable default configuration values.
func DefaultVolumeConfig() *VolumeConfig {
	return &VolumeConfig{
		StrandCount:      8,
		ReadCacheSize:    512,
		ReclaimThreshold: 0.5,
	}
}

// StrandStats are the per-strand statistics counters persisted in the
// strand header: three device-level byte counters, two logical byte
// counters, and the live/dead item counts.
type StrandStats struct {
	ReadBytes           uint64 // bytes read at the device level
	WrittenBytes        uint64 // bytes written at the device level
	TrimmedBytes        uint64 // bytes trimmed at the device level
	LogicalReadBytes    uint64 // bytes read before buffering/framing
	LogicalWrittenBytes uint64 // bytes written before buffering/framing
	ValidItems          uint64 // items currently addressed by the index
	DeletedItems        uint64 // items dead but not yet reclaimed
}

// Add accumulates another stats block into this one.
func (s *StrandStats) Add(other StrandStats) {
	s.ReadBytes += other.ReadBytes
	s.WrittenBytes += other.WrittenBytes
	s.TrimmedBytes += other.TrimmedBytes
	s.LogicalReadBytes += other.LogicalReadBytes
	s.LogicalWrittenBytes += other.LogicalWrittenBytes
	s.ValidItems += other.ValidItems
	s.DeletedItems += other.DeletedItems
}

// VolumeStats is the aggregate view returned by Volume.Stats.
type VolumeStats struct {
	InstanceID  string        // per-open UUID, ties log lines to this stats view
	StrandCount int           // number of strands in the volume
	Keys        int           // live keys in the index
	Deleted     int           // dead pointers awaiting reclamation
	Uptime      time.Duration // time since this open
	Totals      StrandStats   // sum over all strand counters
	PerStrand   []StrandStats // counters per strand, indexed by strand id
}

// alignDown rounds down to the page boundary.
func alignDown(n uint64) uint64 {
	return n &^ (PageSize - 1)
}
