// Package index implements the per-column value-index family: address,
// subnet, string, list, enum, and bool indexes built over compressed
// bitmaps (spec.md §4.2).
package index

import (
	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

// ValueIndex binds one column of one layout to a bitmap-based structure.
// Every variant shares this small surface; dynamic dispatch through this
// interface costs one vtable call per lookup, negligible against the
// bitmap work it wraps (spec.md §9 "Value index polymorphism").
type ValueIndex interface {
	// Append adds v at absolute position id, implicitly skipping any gap
	// since the last append. It returns false when v does not match the
	// index's declared column type; the caller logs and proceeds.
	Append(v view.Value, id uint64) bool

	// Lookup evaluates the relational operator o against v and returns
	// the bitmap of matching IDs, or a TypeClash/UnsupportedOperator
	// error from the xerrors package.
	Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error)

	// MemUsage estimates the index's resident memory in bytes.
	MemUsage() uint64

	// Size reports the number of rows appended (the logical ID range
	// covered by the index).
	Size() uint64
}

// Serializable is implemented by indexes with a byte-stream
// representation; the partition codec uses it to persist/restore a
// column (spec.md §4.2 "Serialize / deserialize to a byte stream").
type Serializable interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary([]byte) error
}
