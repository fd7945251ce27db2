package index

import (
	"bytes"
	"encoding/binary"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// EnumIndex is an equality-coded bitmap over a closed set of discrete
// codes (spec.md §3 "Enumeration index").
type EnumIndex struct {
	codes *equalityIndex[uint32]
	size  uint64
}

func NewEnumIndex() *EnumIndex {
	return &EnumIndex{codes: newEqualityIndex[uint32]()}
}

func (e *EnumIndex) Size() uint64 { return e.size }

func (e *EnumIndex) Append(v view.Value, id uint64) bool {
	enum, ok := v.(view.Enum)
	if !ok {
		return false
	}
	e.codes.Append(enum.Code, id)
	e.size = id + 1
	return true
}

func (e *EnumIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	enum, ok := v.(view.Enum)
	if !ok {
		return nil, xerrors.New(xerrors.TypeClash, "enum index: expected enum operand")
	}
	switch o {
	case op.Equal:
		return e.codes.Lookup(enum.Code), nil
	case op.NotEqual:
		return bitmap.Not(e.codes.Lookup(enum.Code), e.size), nil
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "enum index: unsupported operator %s", o)
	}
}

func (e *EnumIndex) MemUsage() uint64 { return e.codes.MemUsage() }

func (e *EnumIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, e.size); err != nil {
		return nil, err
	}
	codes, err := e.codes.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, codes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *EnumIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &e.size); err != nil {
		return err
	}
	blob, err := readBlob(r)
	if err != nil {
		return err
	}
	e.codes = newEqualityIndex[uint32]()
	return e.codes.UnmarshalBinary(blob)
}

// BoolIndex is a singleton-coded bitmap over telemetry booleans
// (spec.md §3 "Boolean index").
type BoolIndex struct {
	trueBits *bitmap.Bitmap
	size     uint64
}

func NewBoolIndex() *BoolIndex {
	return &BoolIndex{trueBits: bitmap.New()}
}

func (b *BoolIndex) Size() uint64 { return b.size }

func (b *BoolIndex) Append(v view.Value, id uint64) bool {
	bv, ok := v.(view.Bool)
	if !ok {
		return false
	}
	if gap := id - b.trueBits.Size(); gap > 0 {
		b.trueBits.Skip(gap)
	}
	b.trueBits.Append(bool(bv), 1)
	b.size = id + 1
	return true
}

func (b *BoolIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	bv, ok := v.(view.Bool)
	if !ok {
		return nil, xerrors.New(xerrors.TypeClash, "bool index: expected bool operand")
	}
	want := bool(bv)
	switch o {
	case op.Equal:
		if want {
			return b.trueBits.Clone(), nil
		}
		return bitmap.Not(b.trueBits, b.size), nil
	case op.NotEqual:
		if want {
			return bitmap.Not(b.trueBits, b.size), nil
		}
		return b.trueBits.Clone(), nil
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "bool index: unsupported operator %s", o)
	}
}

func (b *BoolIndex) MemUsage() uint64 { return b.trueBits.Rank()/8 + 64 }

// AnyTrue reports whether any row has ever been true; used by the
// boolean-pair synopsis.
func (b *BoolIndex) AnyTrue() bool { return !b.trueBits.AllZero() }

// AnyFalse reports whether any row has ever been false.
func (b *BoolIndex) AnyFalse() bool {
	return b.trueBits.Rank() < b.size
}

func (b *BoolIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, b.size); err != nil {
		return nil, err
	}
	trueBits, err := b.trueBits.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, trueBits); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *BoolIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &b.size); err != nil {
		return err
	}
	blob, err := readBlob(r)
	if err != nil {
		return err
	}
	b.trueBits = bitmap.New()
	return b.trueBits.UnmarshalBinary(blob)
}
