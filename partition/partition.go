// Package partition implements the partition: the unit of storage that
// owns a set of per-column value indexes and a synopsis over one
// contiguous ID range (spec.md §4.6).
package partition

import (
	"sync"

	"github.com/google/uuid"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/index"
	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// IDRange is the half-open [Base, Base+Count) ID interval a partition
// owns (spec.md §3 "Partition").
type IDRange struct {
	Base  uint64
	Count uint64
}

func (r IDRange) End() uint64 { return r.Base + r.Count }

// Slice is one batch of rows arriving from the importer: BaseID is the
// pre-assigned start of the range, and Columns holds each qualified
// field's per-row values (nil entries mark a null cell, which the
// partition skips rather than feeding to the value index or synopsis).
type Slice struct {
	BaseID  uint64
	Rows    int
	Columns map[string][]view.Value
}

// Limits bounds the per-column value indexes a partition builds
// (spec.md §6 "max-string-size", "max-container-elements"). The zero
// value falls back to each index's own default (index.DefaultMaxStringSize,
// index.DefaultMaxContainerElements).
type Limits struct {
	MaxStringSize        int
	MaxContainerElements int
}

// Partition owns value indexes and a synopsis over one contiguous ID
// range. An active partition additionally accepts Append; a passive
// (persisted, read-only) partition only answers Lookup.
type Partition struct {
	mu sync.RWMutex

	ID       uuid.UUID
	Layout   schema.Layout
	IDs      IDRange
	Synopsis *metaindex.PartitionSynopsis

	indexes   map[string]index.ValueIndex
	capacity  uint64 // rows remaining before decommission, active only
	sealed    bool   // true once decommissioned; Append then refuses
	persisted bool
	synCfg    metaindex.SynopsisConfig
	limits    Limits
}

// New creates an empty active partition with the given row capacity
// (spec.md §4.6 "initial partition_capacity rows").
func New(id uuid.UUID, layout schema.Layout, capacity uint64, synCfg metaindex.SynopsisConfig, limits Limits) *Partition {
	return &Partition{
		ID:       id,
		Layout:   layout,
		Synopsis: metaindex.NewPartitionSynopsis(layout.Name, synCfg),
		indexes:  make(map[string]index.ValueIndex),
		capacity: capacity,
		synCfg:   synCfg,
		limits:   limits,
	}
}

// Sealed reports whether the partition has been decommissioned and will
// accept no further appends (spec.md §4.6 "decommission-after-this-slice").
func (p *Partition) Sealed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sealed
}

// Persisted reports whether the partition has completed its background
// persist task (spec.md §4.6 "Persist").
func (p *Partition) Persisted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.persisted
}

func (p *Partition) MarkPersisted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persisted = true
}

// Remaining reports how many more rows the active partition can accept
// before the coordinator must rotate to a fresh active (spec.md §4.7
// "If the slice exceeds the active's remaining capacity").
func (p *Partition) Remaining() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capacity
}

// Append feeds one slice into the partition. It always accepts the
// slice in full (the spec forbids splitting a slice across partitions);
// if the slice exceeds remaining capacity, the partition is marked
// sealed after ingesting it so the coordinator rolls over on the next
// slice.
func (p *Partition) Append(slice Slice) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sealed {
		return xerrors.New(xerrors.LogicError, "partition: append to sealed partition")
	}
	if p.IDs.Count == 0 {
		p.IDs.Base = slice.BaseID
	}

	for _, field := range p.Layout.Fields {
		if field.HasAttribute("skip") {
			continue
		}
		values, ok := slice.Columns[field.QualifiedName(p.Layout.Name)]
		if !ok {
			continue
		}
		idx := p.indexOf(field)
		for row, v := range values {
			if v == nil {
				continue
			}
			id := slice.BaseID + uint64(row)
			if ok := idx.Append(v, id); !ok {
				// type mismatch on append: log and proceed (spec.md §4.2
				// "Failure semantics").
				continue
			}
			p.Synopsis.Add(field, v)
		}
	}

	p.IDs.Count += uint64(slice.Rows)
	if uint64(slice.Rows) >= p.capacity {
		p.capacity = 0
		p.sealed = true
	} else {
		p.capacity -= uint64(slice.Rows)
	}
	return nil
}

func (p *Partition) indexOf(field schema.Field) index.ValueIndex {
	qn := field.QualifiedName(p.Layout.Name)
	if idx, ok := p.indexes[qn]; ok {
		return idx
	}
	idx := newIndexFor(field.Type, p.limits)
	p.indexes[qn] = idx
	return idx
}

func newIndexFor(fieldType string, limits Limits) index.ValueIndex {
	switch fieldType {
	case "addr":
		return index.NewAddressIndex()
	case "subnet":
		return index.NewSubnetIndex()
	case "string":
		return index.NewStringIndex(limits.MaxStringSize)
	case "enum":
		return index.NewEnumIndex()
	case "bool":
		return index.NewBoolIndex()
	case "port":
		return index.NewPortIndex()
	case "int", "count", "real", "duration", "time":
		return index.NewOrderedIndex()
	default:
		return index.NewListIndex(limits.MaxContainerElements, func() index.ValueIndex {
			return index.NewOrderedIndex()
		})
	}
}

// Lookup evaluates one resolved predicate against this partition's
// value indexes, returning an all-zero bitmap (not an error) when the
// column has no index yet, per spec.md §4.2's "type_clash ... empty
// result for this predicate, do not abort the query".
func (p *Partition) Lookup(qualifiedField string, o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	idx, ok := p.indexes[qualifiedField]
	if !ok {
		return bitmap.Repeat(false, p.IDs.Count), nil
	}
	bm, err := idx.Lookup(o, v)
	if err != nil {
		if xerrors.Is(err, xerrors.TypeClash) || xerrors.Is(err, xerrors.UnsupportedOperator) {
			return bitmap.Repeat(false, p.IDs.Count), nil
		}
		return nil, err
	}
	return bm, nil
}

// MemUsage sums every column index's footprint plus the synopsis.
func (p *Partition) MemUsage() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total uint64
	for _, idx := range p.indexes {
		total += idx.MemUsage()
	}
	return total + p.Synopsis.MemUsage()
}
