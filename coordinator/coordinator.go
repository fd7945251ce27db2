// Package coordinator implements the index coordinator: the owner of
// the active partition, the decommissioned-but-not-yet-durable
// partitions, the persisted-partition catalog, the in-memory passive
// partition cache, and the meta-index (spec.md §4.7).
package coordinator

import (
	"bytes"
	"encoding/gob"
	"errors"
	"os"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/event"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/internal/storage"
	"github.com/telescan/telescan/log"
	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/xerrors"
)

const indexFile = "index.bin"

// NotificationKind distinguishes the lifecycle events a Coordinator
// publishes on its Feed.
type NotificationKind int

const (
	// PartitionRolled fires when an active partition is sealed or
	// forced to rotate and moves into the unpersisted set.
	PartitionRolled NotificationKind = iota
	// PartitionPersisted fires once a rolled partition's durable write
	// completes and it joins the persisted catalog.
	PartitionPersisted
)

// Notification is one lifecycle event published on Coordinator.Feed
// (spec.md §2 "worker became idle / partition rolled over / partition
// persisted" notifications, adapted from go-ethereum's event.Feed).
type Notification struct {
	Kind      NotificationKind
	Partition uuid.UUID
	Layout    string
}

// catalog is the on-disk format of <db>/index.bin: the persisted
// partition UUID list plus per-layout event counts (spec.md §6).
type catalog struct {
	Persisted []uuid.UUID
	Layouts   map[uuid.UUID]schema.Layout
	Stats     map[string]uint64
}

// Coordinator serializes all access to partition lifecycle state; query
// workers and the ingest stream stage both go through it rather than
// touching partitions directly (spec.md §5 "Access is serialized
// through the coordinator actor; workers receive handles only").
type Coordinator struct {
	mu sync.Mutex

	cfg     config.Config
	dir     storage.Dir
	codec   partition.Codec
	metrics *metrics.Registry
	synCfg  metaindex.SynopsisConfig
	limits  partition.Limits
	fatal   func(error)
	log     log.Logger

	active      map[string]*partition.Partition // layout name -> active partition
	unpersisted map[uuid.UUID]*partition.Partition
	persisted   []uuid.UUID // sorted ascending
	layouts     map[uuid.UUID]schema.Layout
	cache       *lru.Cache[uuid.UUID, *partition.Partition]
	pinned      map[uuid.UUID]int

	metaIdx *metaindex.MetaIndex
	stats   map[string]uint64

	feed event.Feed[Notification]
}

// Subscribe registers ch to receive partition lifecycle notifications
// (PartitionRolled, PartitionPersisted). The returned Subscription must
// be released with Unsubscribe.
func (c *Coordinator) Subscribe(ch chan Notification) *event.Subscription[Notification] {
	return c.feed.Subscribe(ch)
}

// Option mutates a Coordinator at construction time.
type Option func(*Coordinator)

// WithFatal overrides the action taken on an unrecoverable write
// failure (spec.md §7 "Persist failures are fatal"). Tests substitute a
// function that records the error instead of exiting the process.
func WithFatal(f func(error)) Option {
	return func(c *Coordinator) { c.fatal = f }
}

func defaultFatal(log log.Logger) func(error) {
	return func(err error) {
		log.Crit("coordinator: fatal persistence error, exiting", "err", err)
		os.Exit(1)
	}
}

// Open constructs a Coordinator and recovers its catalog from dir if
// <db>/index.bin exists, reading each persisted partition's header to
// rebuild the meta-index (spec.md §4.7 "Startup"). Absence of the
// catalog file is not an error: it means an empty database.
func Open(cfg config.Config, dir storage.Dir, codec partition.Codec, reg *metrics.Registry, opts ...Option) (*Coordinator, error) {
	l := log.New("component", "coordinator")
	c := &Coordinator{
		cfg:         cfg,
		dir:         dir,
		codec:       codec,
		metrics:     reg,
		synCfg:      cfg.SynopsisConfig(),
		limits:      partition.Limits{MaxStringSize: cfg.MaxStringSize, MaxContainerElements: cfg.MaxContainerElements},
		log:         l,
		active:      make(map[string]*partition.Partition),
		unpersisted: make(map[uuid.UUID]*partition.Partition),
		layouts:     make(map[uuid.UUID]schema.Layout),
		pinned:      make(map[uuid.UUID]int),
		metaIdx:     metaindex.New(),
		stats:       make(map[string]uint64),
	}
	c.fatal = defaultFatal(l)
	for _, opt := range opts {
		opt(c)
	}

	cacheSize := cfg.MaxResidentPartitions
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[uuid.UUID, *partition.Partition](cacheSize)
	if err != nil {
		return nil, xerrors.Wrap(err, "coordinator: build partition cache")
	}
	c.cache = cache

	if err := c.recover(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) recover() error {
	raw, err := c.dir.ReadFile(indexFile)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return xerrors.Mark(err, xerrors.FilesystemError)
	}
	var cat catalog
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&cat); err != nil {
		return xerrors.Mark(err, xerrors.FormatError)
	}
	if cat.Stats != nil {
		c.stats = cat.Stats
	}

	for _, id := range cat.Persisted {
		raw, err := c.dir.ReadFile(id.String())
		if err != nil {
			c.log.Warn("partition file missing during recovery, skipping", "partition", id, "err", err)
			continue
		}
		header, blobs, err := c.codec.Decode(bytes.NewReader(raw))
		if err != nil {
			c.log.Warn("partition file unreadable during recovery, skipping", "partition", id, "err", err)
			continue
		}
		p, err := partition.Restore(header, blobs, c.synCfg, c.limits)
		if err != nil {
			c.log.Warn("partition restore failed, skipping", "partition", id, "err", err)
			continue
		}
		c.insertPersistedSorted(id)
		c.layouts[id] = header.Layout
		c.metaIdx.Merge(id, header.Layout, p.Synopsis)
		c.cache.Add(id, p)
	}
	return nil
}

// Ingest feeds one event slice into the active partition for layout,
// rotating the active partition first if the slice will not fit
// (spec.md §4.7 "Stream stage").
func (c *Coordinator) Ingest(layout schema.Layout, slice partition.Slice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	active, ok := c.active[layout.Name]
	if !ok {
		active = c.newActiveLocked(layout)
	} else if uint64(slice.Rows) > active.Remaining() {
		if err := c.rotateLocked(layout.Name, active); err != nil {
			return err
		}
		active = c.newActiveLocked(layout)
	}

	if err := active.Append(slice); err != nil {
		return err
	}
	c.metaIdx.Merge(active.ID, layout, active.Synopsis)
	c.stats[layout.Name] += uint64(slice.Rows)
	c.reportIngestMetrics(layout.Name, slice.Rows)

	if active.Sealed() {
		if err := c.rotateLocked(layout.Name, active); err != nil {
			return err
		}
		delete(c.active, layout.Name)
	}
	return nil
}

func (c *Coordinator) reportIngestMetrics(layoutName string, rows int) {
	if c.metrics == nil {
		return
	}
	c.metrics.EventsIngested.WithLabelValues(layoutName).Add(float64(rows))
	c.metrics.PartitionCount.Set(float64(c.metaIdx.Size()))
	c.metrics.MetaIndexBytes.Set(float64(c.metaIdx.MemUsage()))
}

func (c *Coordinator) newActiveLocked(layout schema.Layout) *partition.Partition {
	id := uuid.New()
	p := partition.New(id, layout, c.cfg.MaxPartitionSize, c.synCfg, c.limits)
	c.active[layout.Name] = p
	c.layouts[id] = layout
	return p
}

// rotateLocked decommissions p: it moves to the unpersisted set, the
// coordinator catalog is flushed synchronously, and a background
// goroutine durably writes it (spec.md §4.7 "decommission... flush
// coordinator state to disk"). The catalog lists only persisted
// partitions, so p is recovered on restart only once its persist has
// completed.
func (c *Coordinator) rotateLocked(layoutName string, p *partition.Partition) error {
	p.Synopsis.Shrink()
	c.unpersisted[p.ID] = p
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.feed.Send(Notification{Kind: PartitionRolled, Partition: p.ID, Layout: layoutName})
	go c.persistAsync(p, layoutName)
	return nil
}

func (c *Coordinator) flushLocked() error {
	cat := catalog{
		Persisted: append([]uuid.UUID(nil), c.persisted...),
		Layouts:   c.layouts,
		Stats:     c.stats,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cat); err != nil {
		return xerrors.Wrap(err, "coordinator: encode catalog")
	}
	if err := c.dir.WriteFile(indexFile, buf.Bytes()); err != nil {
		return xerrors.Mark(err, xerrors.FilesystemError)
	}
	return nil
}

// persistAsync durably writes p's header and column indexes, then
// updates the catalog. A write failure is fatal (spec.md §7
// "Persist failures are fatal: quit the coordinator... partial
// persistence is not tolerated").
func (c *Coordinator) persistAsync(p *partition.Partition, layoutName string) {
	err := c.writePartition(p)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fatal(xerrors.Wrap(err, "coordinator: persist partition "+p.ID.String()))
		return
	}
	delete(c.unpersisted, p.ID)
	c.insertPersistedSorted(p.ID)
	p.MarkPersisted()
	if err := c.flushLocked(); err != nil {
		c.fatal(xerrors.Wrap(err, "coordinator: flush catalog after persist"))
	}
	c.feed.Send(Notification{Kind: PartitionPersisted, Partition: p.ID, Layout: layoutName})
}

func (c *Coordinator) writePartition(p *partition.Partition) error {
	header, err := p.Header()
	if err != nil {
		return err
	}
	blobs, err := p.MarshalIndexes()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := c.codec.Encode(&buf, header, blobs); err != nil {
		return err
	}
	if err := c.dir.WriteFile(p.ID.String(), buf.Bytes()); err != nil {
		return xerrors.Mark(err, xerrors.FilesystemError)
	}
	return nil
}

func (c *Coordinator) insertPersistedSorted(id uuid.UUID) {
	idx := sort.Search(len(c.persisted), func(i int) bool { return !uuidLess(c.persisted[i], id) })
	if idx < len(c.persisted) && c.persisted[idx] == id {
		return
	}
	c.persisted = append(c.persisted, uuid.Nil)
	copy(c.persisted[idx+1:], c.persisted[idx:])
	c.persisted[idx] = id
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// MetaIndex returns the coordinator's meta-index, the scheduler's entry
// point for query admission (spec.md §4.8 "meta_idx.lookup").
func (c *Coordinator) MetaIndex() *metaindex.MetaIndex {
	return c.metaIdx
}

// Layout returns the layout a partition was created with.
func (c *Coordinator) Layout(id uuid.UUID) (schema.Layout, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.layouts[id]
	return l, ok
}

// Layouts returns every distinct layout seen so far, one entry per
// layout name. The scheduler tailors a candidate-selection query
// against each of these before consulting the meta-index, since a
// field reference is only meaningful relative to a specific layout.
func (c *Coordinator) Layouts() []schema.Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool, len(c.layouts))
	out := make([]schema.Layout, 0, len(c.layouts))
	for _, l := range c.layouts {
		if seen[l.Name] {
			continue
		}
		seen[l.Name] = true
		out = append(out, l)
	}
	return out
}

// Resident reports whether id is currently reachable without a disk
// read: active, unpersisted, or already in the passive cache. The
// scheduler uses this to prefer already-loaded candidates when picking
// the next batch (spec.md §4.8 "preferring those already in memory").
func (c *Coordinator) Resident(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.active {
		if p.ID == id {
			return true
		}
	}
	if _, ok := c.unpersisted[id]; ok {
		return true
	}
	return c.cache.Contains(id)
}

// Resolve returns the partition handle for id, loading it from disk
// into the passive cache on a miss. Callers that hand the result to a
// worker must Pin before use and Unpin when done so cache eviction
// cannot reclaim a handle mid-evaluation (spec.md §5 "Access is
// serialized through the coordinator actor").
func (c *Coordinator) Resolve(id uuid.UUID) (*partition.Partition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range c.active {
		if p.ID == id {
			return p, nil
		}
	}
	if p, ok := c.unpersisted[id]; ok {
		return p, nil
	}
	if p, ok := c.cache.Get(id); ok {
		return p, nil
	}

	layout, ok := c.layouts[id]
	if !ok {
		return nil, xerrors.Newf(xerrors.LogicError, "coordinator: unknown partition %s", id)
	}
	raw, err := c.dir.ReadFile(id.String())
	if err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "coordinator: load partition "+id.String()), xerrors.FilesystemError)
	}
	header, blobs, err := c.codec.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, xerrors.Mark(xerrors.Wrap(err, "coordinator: decode partition "+id.String()), xerrors.FormatError)
	}
	p, err := partition.Restore(header, blobs, c.synCfg, c.limits)
	if err != nil {
		return nil, err
	}
	_ = layout
	c.cacheAddLocked(id, p)
	return p, nil
}

func (c *Coordinator) cacheAddLocked(id uuid.UUID, p *partition.Partition) {
	c.cache.Add(id, p)
	c.evictUnpinnedLocked()
}

// evictUnpinnedLocked trims the passive cache down to max-resident-
// partitions, skipping any UUID with an outstanding Pin. This sidesteps
// relying on golang-lru's eviction callback to refuse evicting a pinned
// entry: that would require re-adding the victim from inside the
// callback, which is not guaranteed safe. Removing the oldest unpinned
// key directly is simple and correct.
func (c *Coordinator) evictUnpinnedLocked() {
	max := c.cfg.MaxResidentPartitions
	if max <= 0 {
		return
	}
	for c.cache.Len() > max {
		victim, ok := uuid.UUID{}, false
		for _, k := range c.cache.Keys() {
			if c.pinned[k] > 0 {
				continue
			}
			victim, ok = k, true
			break
		}
		if !ok {
			return // every resident partition is pinned; exceed the soft cap
		}
		c.cache.Remove(victim)
	}
}

// Pin marks id as in use by a worker, preventing cache eviction until a
// matching Unpin. Pin on an active or unpersisted partition is a no-op
// since those are never subject to LRU eviction.
func (c *Coordinator) Pin(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned[id]++
}

// Unpin releases a Pin. Safe to call more times than Pin; the count
// never goes negative.
func (c *Coordinator) Unpin(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned[id] == 0 {
		return
	}
	c.pinned[id]--
	if c.pinned[id] == 0 {
		delete(c.pinned, id)
	}
	c.evictUnpinnedLocked()
}

// Stats returns a snapshot of per-layout ingested event counts.
func (c *Coordinator) Stats() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}
