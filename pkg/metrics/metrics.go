// Package metrics provides monitoring and metrics collection for StrikingDB.
// Counters are lock-free atomics updated on the hot paths; consumers take
// point-in-time snapshots for display or export.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the central metrics collection system for one volume.
type Collector struct {
	ops        *OperationMetrics
	cache      *CacheMetrics
	recovery   *RecoveryMetrics
	reclaim    *ReclaimMetrics
	checkpoint *CheckpointMetrics
	startTime  time.Time
}

// OperationMetrics tracks the client-facing operation counters.
type OperationMetrics struct {
	PutOps    atomic.Uint64
	GetOps    atomic.Uint64
	GetMisses atomic.Uint64
	DeleteOps atomic.Uint64
	Errors    atomic.Uint64

	// Latency of the most expensive path, appends, in nanoseconds.
	AppendLatencyNs atomic.Uint64
}

// CacheMetrics tracks the read cache.
type CacheMetrics struct {
	Hits      atomic.Uint64
	Misses    atomic.Uint64
	Evictions atomic.Uint64
}

// RecoveryMetrics tracks checkpoint loads and full-scan rebuilds.
type RecoveryMetrics struct {
	CheckpointLoads  atomic.Uint64
	ScanRebuilds     atomic.Uint64
	RecordsReplayed  atomic.Uint64
	CorruptTails     atomic.Uint64
	RebuildDurationNs atomic.Uint64
}

// ReclaimMetrics tracks garbage collection passes.
type ReclaimMetrics struct {
	Passes        atomic.Uint64
	RangesTrimmed atomic.Uint64
	BytesTrimmed  atomic.Uint64
	ItemsReclaimed atomic.Uint64
}

// CheckpointMetrics tracks checkpoint persistence.
type CheckpointMetrics struct {
	Writes       atomic.Uint64
	WriteErrors  atomic.Uint64
	BytesWritten atomic.Uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		ops:        &OperationMetrics{},
		cache:      &CacheMetrics{},
		recovery:   &RecoveryMetrics{},
		reclaim:    &ReclaimMetrics{},
		checkpoint: &CheckpointMetrics{},
		startTime:  time.Now(),
	}
}

// Ops returns the operation counters.
func (c *Collector) Ops() *OperationMetrics {
	return c.ops
}

// Cache returns the read cache counters.
func (c *Collector) Cache() *CacheMetrics {
	return c.cache
}

// Recovery returns the recovery counters.
func (c *Collector) Recovery() *RecoveryMetrics {
	return c.recovery
}

// Reclaim returns the garbage collection counters.
func (c *Collector) Reclaim() *ReclaimMetrics {
	return c.reclaim
}

// Checkpoint returns the checkpoint counters.
func (c *Collector) Checkpoint() *CheckpointMetrics {
	return c.checkpoint
}

// Snapshot is a consistent-enough copy of all counters for display.
// Individual counters are read atomically; the snapshot as a whole is not
// a single atomic observation, which is fine for monitoring purposes.
type Snapshot struct {
	UptimeSeconds uint64

	PutOps          uint64
	GetOps          uint64
	GetMisses       uint64
	DeleteOps       uint64
	Errors          uint64
	AppendLatencyNs uint64

	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64

	CheckpointLoads   uint64
	ScanRebuilds      uint64
	RecordsReplayed   uint64
	CorruptTails      uint64
	RebuildDurationNs uint64

	ReclaimPasses  uint64
	RangesTrimmed  uint64
	BytesTrimmed   uint64
	ItemsReclaimed uint64

	CheckpointWrites      uint64
	CheckpointWriteErrors uint64
	CheckpointBytes       uint64
}

// TakeSnapshot reads every counter once.
func (c *Collector) TakeSnapshot() Snapshot {
	return Snapshot{
		UptimeSeconds: uint64(time.Since(c.startTime).Seconds()),

		PutOps:          c.ops.PutOps.Load(),
		GetOps:          c.ops.GetOps.Load(),
		GetMisses:       c.ops.GetMisses.Load(),
		DeleteOps:       c.ops.DeleteOps.Load(),
		Errors:          c.ops.Errors.Load(),
		AppendLatencyNs: c.ops.AppendLatencyNs.Load(),

		CacheHits:      c.cache.Hits.Load(),
		CacheMisses:    c.cache.Misses.Load(),
		CacheEvictions: c.cache.Evictions.Load(),

		CheckpointLoads:   c.recovery.CheckpointLoads.Load(),
		ScanRebuilds:      c.recovery.ScanRebuilds.Load(),
		RecordsReplayed:   c.recovery.RecordsReplayed.Load(),
		CorruptTails:      c.recovery.CorruptTails.Load(),
		RebuildDurationNs: c.recovery.RebuildDurationNs.Load(),

		ReclaimPasses:  c.reclaim.Passes.Load(),
		RangesTrimmed:  c.reclaim.RangesTrimmed.Load(),
		BytesTrimmed:   c.reclaim.BytesTrimmed.Load(),
		ItemsReclaimed: c.reclaim.ItemsReclaimed.Load(),

		CheckpointWrites:      c.checkpoint.Writes.Load(),
		CheckpointWriteErrors: c.checkpoint.WriteErrors.Load(),
		CheckpointBytes:       c.checkpoint.BytesWritten.Load(),
	}
}

var (
	globalCollector *Collector
	globalOnce      sync.Once
)

// GetGlobalCollector returns the process-wide collector, creating it on
// first use.
func GetGlobalCollector() *Collector {
	globalOnce.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// LatencyTracker measures the duration of a single operation.
type LatencyTracker struct {
	start time.Time
}

// NewLatencyTracker starts timing.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{start: time.Now()}
}

// Finish returns the elapsed nanoseconds.
func (lt *LatencyTracker) Finish() uint64 {
	return uint64(time.Since(lt.start).Nanoseconds())
}
