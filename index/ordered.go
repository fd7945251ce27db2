package index

import (
	"time"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// OrderedIndex is the bitmap value index for scalar ordered types (int,
// real, duration, time). spec.md §4.2 enumerates only address, subnet,
// string, list, and enum/bool as bitmap-index variants; this index
// extends that family using the same equalityIndex building block so
// ordering predicates (<, <=, >, >=) can be answered from a column
// index rather than falling back to "cannot prune" at query time.
type OrderedIndex struct {
	values *equalityIndex[float64]
	size   uint64
}

func NewOrderedIndex() *OrderedIndex {
	return &OrderedIndex{values: newEqualityIndex[float64]()}
}

func orderedKey(v view.Value) (float64, bool) {
	switch x := v.(type) {
	case view.Int64:
		return float64(x), true
	case view.Real:
		return float64(x), true
	case view.Duration:
		return float64(time.Duration(x)), true
	case view.Timestamp:
		return float64(time.Time(x).UnixNano()), true
	default:
		return 0, false
	}
}

func (idx *OrderedIndex) Append(v view.Value, id uint64) bool {
	k, ok := orderedKey(v)
	if !ok {
		return false
	}
	idx.values.Append(k, id)
	idx.size = idx.values.Size()
	return true
}

func (idx *OrderedIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	k, ok := orderedKey(v)
	if !ok {
		return nil, xerrors.New(xerrors.TypeClash, "ordered index: value is not an ordered scalar")
	}
	var pred func(float64) bool
	switch o {
	case op.Equal:
		pred = func(x float64) bool { return x == k }
	case op.NotEqual:
		pred = func(x float64) bool { return x != k }
	case op.Less:
		pred = func(x float64) bool { return x < k }
	case op.LessEqual:
		pred = func(x float64) bool { return x <= k }
	case op.Greater:
		pred = func(x float64) bool { return x > k }
	case op.GreaterEqual:
		pred = func(x float64) bool { return x >= k }
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "ordered index: unsupported operator %s", o)
	}
	return idx.values.LookupPredicate(pred), nil
}

func (idx *OrderedIndex) MemUsage() uint64 { return idx.values.MemUsage() }
func (idx *OrderedIndex) Size() uint64     { return idx.size }

func (idx *OrderedIndex) MarshalBinary() ([]byte, error) {
	return idx.values.MarshalBinary()
}

func (idx *OrderedIndex) UnmarshalBinary(data []byte) error {
	idx.values = newEqualityIndex[float64]()
	if err := idx.values.UnmarshalBinary(data); err != nil {
		return err
	}
	idx.size = idx.values.Size()
	return nil
}

// PortIndex is the equality-only value index for transport-layer ports,
// keyed on the "<number>/<proto>" string form since ports are never
// compared with ordering operators in spec.md's query language.
type PortIndex struct {
	values *equalityIndex[string]
	size   uint64
}

func NewPortIndex() *PortIndex {
	return &PortIndex{values: newEqualityIndex[string]()}
}

func (idx *PortIndex) Append(v view.Value, id uint64) bool {
	p, ok := v.(view.Port)
	if !ok {
		return false
	}
	idx.values.Append(p.String(), id)
	idx.size = idx.values.Size()
	return true
}

func (idx *PortIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	p, ok := v.(view.Port)
	if !ok {
		return nil, xerrors.New(xerrors.TypeClash, "port index: value is not a port")
	}
	switch o {
	case op.Equal:
		return idx.values.Lookup(p.String()), nil
	case op.NotEqual:
		return idx.values.LookupPredicate(func(s string) bool { return s != p.String() }), nil
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "port index: unsupported operator %s", o)
	}
}

func (idx *PortIndex) MemUsage() uint64 { return idx.values.MemUsage() }
func (idx *PortIndex) Size() uint64     { return idx.size }

func (idx *PortIndex) MarshalBinary() ([]byte, error) {
	return idx.values.MarshalBinary()
}

func (idx *PortIndex) UnmarshalBinary(data []byte) error {
	idx.values = newEqualityIndex[string]()
	if err := idx.values.UnmarshalBinary(data); err != nil {
		return err
	}
	idx.size = idx.values.Size()
	return nil
}
