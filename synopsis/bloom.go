package synopsis

import (
	"hash/fnv"

	"github.com/holiman/bloomfilter/v2"

	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

// DefaultFalsePositiveRate is used when a caller does not size a Bloom
// synopsis explicitly (spec.md §6 "address-synopsis-fp-rate",
// "string-synopsis-fp-rate").
const DefaultFalsePositiveRate = 0.01

// Bloom is the equality synopsis for addresses and strings (spec.md
// §4.3). It answers == soundly (false means "definitely absent") and
// declines everything else.
type Bloom struct {
	filter *bloomfilter.Filter
}

// NewBloom sizes a filter for maxElements entries at the given false
// positive rate. maxElements == 0 is treated as 1; if sizing still
// fails, a minimal fixed-size filter is used.
func NewBloom(maxElements uint64, falsePositiveRate float64) *Bloom {
	if maxElements == 0 {
		maxElements = 1
	}
	if falsePositiveRate <= 0 {
		falsePositiveRate = DefaultFalsePositiveRate
	}
	f, err := bloomfilter.NewOptimal(maxElements, falsePositiveRate)
	if err != nil {
		f, _ = bloomfilter.New(1024, 4)
	}
	return &Bloom{filter: f}
}

func hashOf(v view.Value) bloomfilter.Hash {
	h := fnv.New64a()
	_, _ = h.Write([]byte(v.Kind()))
	_, _ = h.Write([]byte(v.String()))
	return bloomfilter.Hash(h.Sum64())
}

func (b *Bloom) Add(v view.Value) {
	b.filter.Add(hashOf(v))
}

func (b *Bloom) Lookup(o op.RelOp, v view.Value) *bool {
	switch o {
	case op.Equal:
		present := b.filter.Contains(hashOf(v))
		return ptr(present)
	default:
		// != cannot be pruned from an equality filter: absence of x
		// says nothing about whether some other value is also absent.
		// Likewise "in subnet" is unsupported by a pure equality filter.
		return nil
	}
}

func (b *Bloom) MemUsage() uint64 {
	return b.filter.M() / 8
}

// Shrink is a no-op: github.com/holiman/bloomfilter/v2 sizes its bit
// array at construction and does not support in-place resizing. A
// partition sealed well under its configured capacity still carries the
// filter sized for that capacity; true compaction would require
// rebuilding the filter from its element count, which the coordinator
// does not track separately today.
func (b *Bloom) Shrink() {}

// MarshalBinary/UnmarshalBinary delegate to the filter's own binary
// encoding so a Bloom synopsis can be persisted inside a partition
// header (spec.md §4.6 "Persist").
func (b *Bloom) MarshalBinary() ([]byte, error) {
	return b.filter.MarshalBinary()
}

func (b *Bloom) UnmarshalBinary(data []byte) error {
	f := new(bloomfilter.Filter)
	if err := f.UnmarshalBinary(data); err != nil {
		return err
	}
	b.filter = f
	return nil
}
