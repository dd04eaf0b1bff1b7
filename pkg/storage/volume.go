// Package storage - volume implementation.
// The Volume owns the device header, the set of strands, the index, the
// deletion tracker, and the read cache, and orchestrates create, open,
// recovery, client operations, reclamation, and checkpointed close.
package storage

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"

	"github.com/XavilPergis/StrikingDB/pkg/device"
	"github.com/XavilPergis/StrikingDB/pkg/errors"
	"github.com/XavilPergis/StrikingDB/pkg/logging"
	"github.com/XavilPergis/StrikingDB/pkg/metrics"
)

// volumeState is the lifecycle state machine:
// Closed -> Opening -> Open -> Closing -> Closed.
type volumeState int

const (
	stateClosed volumeState = iota
	stateOpening
	stateOpen
	stateClosing
)

// strandHashKey keys the highwayhash used for strand selection. The key
// is fixed so the policy is deterministic across opens; it only needs to
// spread load, not resist adversaries.
var strandHashKey = []byte("strikingdb.strand.selection.key!")

// Volume is a single-node key/value store on one device.
type Volume struct {
	cfg        VolumeConfig
	dev        device.Device
	instanceID string
	openedAt   time.Time
	log        *logging.Logger
	collector  *metrics.Collector

	header  volumeHeader
	strands []*strand
	index   *Index
	deleted *DeletedSet
	cache   *readCache

	// lifecycle is held shared by every operation and exclusively by
	// Close, which is the only call requiring the whole volume to
	// itself. state transitions happen under the exclusive side.
	lifecycle sync.RWMutex
	state     volumeState

	// strictMu serializes the check-then-append sequences of Insert and
	// Update. Plain puts, gets, and deletes never take it, so appends to
	// different strands stay parallel on the hot path.
	strictMu sync.Mutex
}

// Create formats the device as a fresh volume and returns it open. The
// device transfers to the volume; Close releases it.
func Create(dev device.Device, cfg *VolumeConfig) (*Volume, error) {
	if cfg == nil {
		cfg = DefaultVolumeConfig()
	}
	if cfg.StrandCount < MinStrands || cfg.StrandCount > MaxStrands {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "strand count out of range").
			WithContext("strands", cfg.StrandCount)
	}

	strandSize, err := strandGeometry(dev.Capacity(), cfg.StrandCount)
	if err != nil {
		return nil, err
	}

	if cfg.Truncate {
		if err := dev.Trim(0, dev.Capacity()); err != nil {
			return nil, err
		}
	}

	v, err := newVolume(dev, *cfg)
	if err != nil {
		return nil, err
	}
	v.header = newVolumeHeader(uint32(cfg.StrandCount))

	if err := v.writeHeader(); err != nil {
		return nil, err
	}

	v.strands = make([]*strand, cfg.StrandCount)
	for i := range v.strands {
		start := uint64(PageSize) + uint64(i)*strandSize
		s, err := newStrand(dev, uint16(i), start, strandSize)
		if err != nil {
			return nil, err
		}
		v.strands[i] = s
	}

	v.state = stateOpen
	v.log.WithField("strands", cfg.StrandCount).
		WithField("strandSize", strandSize).
		Info("volume created")
	return v, nil
}

// Open validates an existing volume and recovers its in-memory state,
// from the checkpoint when one is recorded or by replaying every strand.
// Both paths leave the engine observably equivalent.
func Open(dev device.Device, cfg *VolumeConfig) (*Volume, error) {
	if cfg == nil {
		cfg = DefaultVolumeConfig()
	}

	page := make([]byte, PageSize)
	if err := dev.ReadAt(0, page); err != nil {
		return nil, err
	}
	header, err := decodeVolumeHeader(page)
	if err != nil {
		return nil, err
	}

	strandCount := int(header.Strands)
	strandSize, err := strandGeometry(dev.Capacity(), strandCount)
	if err != nil {
		return nil, err
	}

	v, err := newVolume(dev, *cfg)
	if err != nil {
		return nil, err
	}
	v.state = stateOpening
	v.header = header
	v.cfg.StrandCount = strandCount

	v.strands = make([]*strand, strandCount)
	for i := range v.strands {
		start := uint64(PageSize) + uint64(i)*strandSize
		s, err := openStrand(dev, uint16(i), start, strandSize)
		if err != nil {
			return nil, err
		}
		v.strands[i] = s
	}

	if !header.Checkpoint.IsNull() && !cfg.Reindex {
		if err := v.loadCheckpoint(header.Checkpoint); err != nil {
			return nil, err
		}
	} else {
		if err := v.rebuildFromScan(); err != nil {
			return nil, err
		}
	}

	v.state = stateOpen
	v.log.WithField("keys", v.index.Count()).
		WithField("deleted", v.deleted.Count()).
		Info("volume opened")
	return v, nil
}

// newVolume assembles the in-memory shell shared by Create and Open.
func newVolume(dev device.Device, cfg VolumeConfig) (*Volume, error) {
	cache, err := newReadCache(cfg.ReadCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create read cache")
	}

	instanceID := uuid.NewString()
	return &Volume{
		cfg:        cfg,
		dev:        dev,
		instanceID: instanceID,
		openedAt:   time.Now(),
		log:        logging.WithComponent("volume").WithField("instance", instanceID),
		collector:  metrics.NewCollector(),
		index:      NewIndex(),
		deleted:    NewDeletedSet(),
		cache:      cache,
	}, nil
}

// strandGeometry derives the per-strand region size from the device
// capacity: the first page belongs to the volume header, the rest is
// divided evenly and page-aligned. Every strand needs its header page
// plus at least one data page.
func strandGeometry(capacity uint64, strands int) (uint64, error) {
	if capacity < PageSize {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "device smaller than one page")
	}
	size := alignDown((capacity - PageSize) / uint64(strands))
	if size < 2*PageSize {
		return 0, errors.New(errors.ErrCodeInvalidConfig, "device too small for strand count").
			WithContext("capacity", capacity).
			WithContext("strands", strands)
	}
	return size, nil
}

// loadCheckpoint populates the index and deletion tracker from the
// persisted Datastore State.
func (v *Volume) loadCheckpoint(raw DiskPointer) error {
	ptr, err := decodePointer(uint64(raw), len(v.strands))
	if err != nil {
		return err
	}

	state, err := readStateFrame(v.strands[ptr.StrandID()], ptr.Offset())
	if err != nil {
		return err
	}

	live := make(map[DiskPointer]struct{}, len(state.Entries))
	for _, entry := range state.Entries {
		entryPtr, err := decodePointer(uint64(entry.Pointer), len(v.strands))
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeCorruptCheckpoint, "datastore state entry has invalid pointer").
				WithContext("key", entry.Key)
		}
		if entryPtr.Offset() >= v.strands[entryPtr.StrandID()].capacity {
			return errors.New(errors.ErrCodeCorruptCheckpoint, "datastore state entry points outside its strand").
				WithContext("key", entry.Key)
		}
		v.index.Insert([]byte(entry.Key), entryPtr)
		live[entryPtr] = struct{}{}
	}

	for _, ptr := range state.Deleted {
		if _, alive := live[ptr]; alive {
			return errors.New(errors.ErrCodeCorruptCheckpoint, "datastore state lists a live pointer as deleted").
				WithContext("pointer", ptr.String())
		}
		v.deleted.Add(ptr)
	}

	v.collector.Recovery().CheckpointLoads.Add(1)
	v.log.WithField("keys", len(state.Entries)).
		WithField("deleted", len(state.Deleted)).
		Debug("checkpoint loaded")
	return nil
}

// rebuildFromScan replays every strand in ascending id order and feeds
// each record through the live insert path, so later writes supersede
// earlier ones exactly as they did when first applied. Superseded
// pointers discovered during the scan land in the deletion tracker;
// explicit deletions leave no log trace and are forgotten.
func (v *Volume) rebuildFromScan() error {
	tracker := metrics.NewLatencyTracker()
	replayed := uint64(0)

	for _, s := range v.strands {
		s.resetItemCounts()

		it := s.replayToCapacity()
		for it.next() {
			off, item := it.record()
			ptr := newPointer(s.id, off)

			s.noteReplayed()
			replayed++

			if prev, existed := v.index.Insert(item.Key, ptr); existed {
				v.applyDeadPointer(prev)
			}
		}

		if err := it.err(); err != nil {
			// Valid entries decoded so far are preserved; the tail of
			// this strand is unreachable until new appends cover it.
			v.collector.Recovery().CorruptTails.Add(1)
			v.log.WithError(err).
				WithField("strand", s.id).
				WithField("frontier", it.frontier()).
				Warn("replay stopped at corrupt record")
		}
		s.setOffset(it.frontier())
	}

	rec := v.collector.Recovery()
	rec.ScanRebuilds.Add(1)
	rec.RecordsReplayed.Add(replayed)
	rec.RebuildDurationNs.Add(tracker.Finish())

	v.log.WithField("records", replayed).
		WithField("keys", v.index.Count()).
		Debug("index rebuilt by scan")
	return nil
}

// applyDeadPointer routes a superseded or removed pointer to the deletion
// tracker and applies the counter delta to the owning strand.
func (v *Volume) applyDeadPointer(ptr DiskPointer) {
	if v.deleted.Add(ptr) {
		v.strands[ptr.StrandID()].markDead()
	}
}

// selectStrand picks the strand a new write for this key lands on:
// a keyed 64-bit hash modulo the strand count. Deterministic and
// side-effect free, spreading keys for device-level parallelism.
func (v *Volume) selectStrand(key []byte) int {
	return int(highwayhash.Sum64(key, strandHashKey) % uint64(len(v.strands)))
}

// appendAnywhere appends starting at the selected strand and probes the
// remaining strands in id order when it is full. All strands full means
// the volume is out of space.
func (v *Volume) appendAnywhere(key, value []byte) (DiskPointer, *strand, error) {
	primary := v.selectStrand(key)

	for i := 0; i < len(v.strands); i++ {
		s := v.strands[(primary+i)%len(v.strands)]
		ptr, err := s.append(key, value)
		if err == nil {
			return ptr, s, nil
		}
		if !errors.IsCode(err, errors.ErrCodeStrandFull) {
			return NullPointer, nil, err
		}
	}
	return NullPointer, nil, ErrOutOfSpace
}

// checkOpen verifies the lifecycle state under the shared lock.
func (v *Volume) checkOpen() error {
	if v.state != stateOpen {
		return ErrVolumeClosed
	}
	return nil
}

// Put stores a key/value pair, superseding any previous value for the
// key. The superseded pointer, if any, moves to the deletion tracker.
func (v *Volume) Put(key, value []byte) error {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}

	tracker := metrics.NewLatencyTracker()

	ptr, s, err := v.appendAnywhere(key, value)
	if err != nil {
		v.collector.Ops().Errors.Add(1)
		return err
	}
	if v.cfg.SyncOnPut {
		if err := v.dev.Sync(); err != nil {
			return err
		}
	}

	if prev, existed := v.index.Insert(key, ptr); existed {
		v.applyDeadPointer(prev)
	}
	v.cache.remove(key)

	ops := v.collector.Ops()
	ops.PutOps.Add(1)
	ops.AppendLatencyNs.Store(tracker.Finish())

	v.maybeReclaim(s)
	return nil
}

// Insert stores a key/value pair only if the key is absent, failing with
// ErrKeyExists otherwise.
func (v *Volume) Insert(key, value []byte) error {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}

	v.strictMu.Lock()
	defer v.strictMu.Unlock()

	if _, exists := v.index.Lookup(key); exists {
		return ErrKeyExists
	}

	ptr, _, err := v.appendAnywhere(key, value)
	if err != nil {
		v.collector.Ops().Errors.Add(1)
		return err
	}
	if v.cfg.SyncOnPut {
		if err := v.dev.Sync(); err != nil {
			return err
		}
	}

	if prev, existed := v.index.Insert(key, ptr); existed {
		// A plain Put raced us; its value loses to this insert.
		v.applyDeadPointer(prev)
	}
	v.cache.remove(key)
	v.collector.Ops().PutOps.Add(1)
	return nil
}

// Update stores a key/value pair only if the key is present, failing with
// ErrKeyNotFound otherwise.
func (v *Volume) Update(key, value []byte) error {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := validateValue(value); err != nil {
		return err
	}

	v.strictMu.Lock()
	defer v.strictMu.Unlock()

	if _, exists := v.index.Lookup(key); !exists {
		return ErrKeyNotFound
	}

	ptr, s, err := v.appendAnywhere(key, value)
	if err != nil {
		v.collector.Ops().Errors.Add(1)
		return err
	}
	if v.cfg.SyncOnPut {
		if err := v.dev.Sync(); err != nil {
			return err
		}
	}

	if prev, existed := v.index.Insert(key, ptr); existed {
		v.applyDeadPointer(prev)
	}
	v.cache.remove(key)
	v.collector.Ops().PutOps.Add(1)

	v.maybeReclaim(s)
	return nil
}

// Get returns the current value for a key, or ErrKeyNotFound.
func (v *Volume) Get(key []byte) ([]byte, error) {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	ops := v.collector.Ops()
	ops.GetOps.Add(1)

	if value, ok := v.cache.get(key); ok {
		v.collector.Cache().Hits.Add(1)
		return value, nil
	}
	v.collector.Cache().Misses.Add(1)

	ptr, ok := v.index.Lookup(key)
	if !ok {
		ops.GetMisses.Add(1)
		return nil, ErrKeyNotFound
	}

	item, err := v.strands[ptr.StrandID()].readItem(ptr.Offset())
	if err != nil {
		ops.Errors.Add(1)
		return nil, err
	}
	if !bytes.Equal(item.Key, key) {
		ops.Errors.Add(1)
		return nil, errors.NewCorruptRecordError("record key does not match index entry").
			WithContext("pointer", ptr.String())
	}

	v.cache.put(key, item.Value)
	return item.Value, nil
}

// Delete removes a key from the index. Its record's bytes become a
// tombstone target tracked by the deletion tracker; nothing is written to
// the log.
func (v *Volume) Delete(key []byte) error {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	ptr, existed := v.index.Remove(key)
	if !existed {
		return ErrKeyNotFound
	}

	v.applyDeadPointer(ptr)
	v.cache.remove(key)
	v.collector.Ops().DeleteOps.Add(1)

	v.maybeReclaim(v.strands[ptr.StrandID()])
	return nil
}

// maybeReclaim triggers a reclaim pass when the strand's dead-item ratio
// crosses the configured threshold. Advisory only: never required for
// read/write correctness.
func (v *Volume) maybeReclaim(s *strand) {
	if v.cfg.ReclaimThreshold <= 0 {
		return
	}

	stats := s.snapshotStats()
	total := stats.ValidItems + stats.DeletedItems
	if total == 0 {
		return
	}
	if float64(stats.DeletedItems)/float64(total) < v.cfg.ReclaimThreshold {
		return
	}

	if _, err := v.reclaimStrand(s); err != nil {
		v.log.WithError(err).
			WithField("strand", s.id).
			Warn("opportunistic reclaim failed")
	}
}

// ReclaimPass runs an explicit reclamation pass over one strand,
// returning the number of bytes trimmed.
func (v *Volume) ReclaimPass(strandID uint16) (uint64, error) {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if int(strandID) >= len(v.strands) {
		return 0, errors.New(errors.ErrCodeOutOfBounds, "no such strand").
			WithContext("strand", strandID)
	}
	return v.reclaimStrand(v.strands[strandID])
}

// reclaimStrand trims the contiguous dead ranges of one strand and drops
// the covered pointers from the deletion tracker.
func (v *Volume) reclaimStrand(s *strand) (uint64, error) {
	ranges, ptrs, err := v.deleted.planReclaim(s.id, s.frameSize)
	if err != nil {
		return 0, err
	}
	if len(ranges) == 0 {
		return 0, nil
	}

	if err := s.reclaim(ranges); err != nil {
		return 0, err
	}
	v.deleted.remove(ptrs)

	trimmed := uint64(0)
	for _, r := range ranges {
		trimmed += r.length
	}

	rec := v.collector.Reclaim()
	rec.Passes.Add(1)
	rec.RangesTrimmed.Add(uint64(len(ranges)))
	rec.BytesTrimmed.Add(trimmed)
	rec.ItemsReclaimed.Add(uint64(len(ptrs)))

	v.log.WithField("strand", s.id).
		WithField("ranges", len(ranges)).
		WithField("bytes", trimmed).
		Debug("reclaimed dead ranges")
	return trimmed, nil
}

// Stats returns the aggregate statistics view.
func (v *Volume) Stats() VolumeStats {
	v.lifecycle.RLock()
	defer v.lifecycle.RUnlock()

	stats := VolumeStats{
		InstanceID:  v.instanceID,
		StrandCount: len(v.strands),
		Keys:        v.index.Count(),
		Deleted:     v.deleted.Count(),
		Uptime:      time.Since(v.openedAt),
		PerStrand:   make([]StrandStats, len(v.strands)),
	}
	for i, s := range v.strands {
		stats.PerStrand[i] = s.snapshotStats()
		stats.Totals.Add(stats.PerStrand[i])
	}
	return stats
}

// Metrics returns a snapshot of the volume's operation counters.
func (v *Volume) Metrics() metrics.Snapshot {
	return v.collector.TakeSnapshot()
}

// InstanceID returns the UUID minted for this open of the volume.
func (v *Volume) InstanceID() string {
	return v.instanceID
}

// Close drains all in-flight operations, persists the Datastore State,
// and finalizes the header. Even when no strand has room for the
// checkpoint the volume still closes — the header keeps a null pointer
// and the next open rebuilds by scan — but NoSpaceForCheckpoint is
// surfaced so the caller knows.
func (v *Volume) Close() error {
	// Exclusive access: waits out every reader and writer.
	v.lifecycle.Lock()
	defer v.lifecycle.Unlock()

	if v.state != stateOpen {
		return ErrVolumeClosed
	}
	v.state = stateClosing

	checkpointErr := v.writeCheckpoint()

	var firstErr error
	for _, s := range v.strands {
		if err := s.flushHeader(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := v.dev.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}

	// The checkpoint record and strand headers are durable before the
	// volume header flips to reference them; a failure here leaves the
	// prior header intact.
	if firstErr == nil {
		if err := v.writeHeader(); err != nil {
			firstErr = err
		} else if err := v.dev.Sync(); err != nil {
			firstErr = err
		}
	}

	if err := v.dev.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	v.state = stateClosed
	v.cache.purge()
	v.log.Info("volume closed")

	if firstErr != nil {
		return firstErr
	}
	return checkpointErr
}

// writeCheckpoint serializes the Datastore State, appends it to the
// first strand with room, and records its address in the in-memory
// header. On failure the header keeps a null checkpoint pointer.
func (v *Volume) writeCheckpoint() error {
	state := &DatastoreState{
		Entries: v.index.Snapshot(),
		Deleted: v.deleted.Snapshot(),
	}

	frame, err := encodeStateFrame(state)
	if err != nil {
		v.collector.Checkpoint().WriteErrors.Add(1)
		v.header.Checkpoint = NullPointer
		return err
	}

	for _, s := range v.strands {
		if s.remaining() < uint64(len(frame)) {
			continue
		}
		ptr, err := s.appendRaw(frame)
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeStrandFull) {
				continue
			}
			v.collector.Checkpoint().WriteErrors.Add(1)
			v.header.Checkpoint = NullPointer
			return err
		}

		v.header.Checkpoint = ptr
		cp := v.collector.Checkpoint()
		cp.Writes.Add(1)
		cp.BytesWritten.Add(uint64(len(frame)))
		v.log.WithField("strand", s.id).
			WithField("bytes", len(frame)).
			Debug("checkpoint written")
		return nil
	}

	v.header.Checkpoint = NullPointer
	v.collector.Checkpoint().WriteErrors.Add(1)
	return errors.New(errors.ErrCodeNoSpaceForCheckpoint, "no strand has room for the checkpoint record").
		WithContext("size", len(frame))
}

// writeHeader persists the volume header page.
func (v *Volume) writeHeader() error {
	return v.dev.WriteAt(0, v.header.encode())
}
