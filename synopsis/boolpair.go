package synopsis

import (
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// BoolPair is the trivial any_true/any_false synopsis (spec.md §4.3).
type BoolPair struct {
	anyTrue  bool
	anyFalse bool
}

func NewBoolPair() *BoolPair { return &BoolPair{} }

func (b *BoolPair) Add(v view.Value) {
	bv, ok := v.(view.Bool)
	if !ok {
		return
	}
	if bv {
		b.anyTrue = true
	} else {
		b.anyFalse = true
	}
}

func (b *BoolPair) Lookup(o op.RelOp, v view.Value) *bool {
	bv, ok := v.(view.Bool)
	if !ok {
		return nil
	}
	want := bool(bv)
	switch o {
	case op.Equal:
		if want {
			return ptr(b.anyTrue)
		}
		return ptr(b.anyFalse)
	case op.NotEqual:
		if want {
			return ptr(b.anyFalse)
		}
		return ptr(b.anyTrue)
	default:
		return nil
	}
}

// LookupNegated implements Negatable: booleans have exactly two values,
// so != true is == false and vice versa.
func (b *BoolPair) LookupNegated(o op.RelOp, v view.Value) *bool {
	return b.Lookup(op.Flip(o), v)
}

func (b *BoolPair) MemUsage() uint64 { return 2 }

func (b *BoolPair) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 2)
	if b.anyTrue {
		buf[0] = 1
	}
	if b.anyFalse {
		buf[1] = 1
	}
	return buf, nil
}

func (b *BoolPair) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return xerrors.New(xerrors.FormatError, "boolpair: truncated snapshot")
	}
	b.anyTrue = data[0] == 1
	b.anyFalse = data[1] == 1
	return nil
}
