// Package synopsis implements per-column probabilistic partition
// summaries used by the meta-index to prune candidate partitions before
// a full index scan (spec.md §4.3).
package synopsis

import (
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

// Synopsis summarizes one column within one partition. Lookup returns:
//   - a pointer to true:  at least one match is possible (may be a false positive)
//   - a pointer to false: no match is possible (a true negative — sound pruning)
//   - nil:                the operator is not supported; the caller must not prune
type Synopsis interface {
	Add(v view.Value)
	Lookup(o op.RelOp, v view.Value) *bool
	MemUsage() uint64
}

// Shrinkable is implemented by synopses that can compact themselves once
// a partition is sealed (e.g. a Bloom filter sized for the partition
// capacity but only partially filled). Grounded on
// libvast/src/meta_index.cpp's partition_synopsis::shrink.
type Shrinkable interface {
	Shrink()
}

// Negatable marks synopses that can answer the negated form of their
// operator set exactly, letting the meta-index prune through a
// Negation node instead of conservatively returning every partition
// (spec.md §4.5 "Exception reserved for future").
type Negatable interface {
	LookupNegated(o op.RelOp, v view.Value) *bool
}

func ptr(b bool) *bool { return &b }
