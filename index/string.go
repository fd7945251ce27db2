package index

import (
	"bytes"
	"encoding/binary"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// DefaultMaxStringSize is the default bound on indexed string length
// (spec.md §6 "max-string-size"); characters beyond it are not indexed.
const DefaultMaxStringSize = 1024

// StringIndex stores per-position byte indexes bounded by MaxLength,
// plus a length index, supporting ==, !=, ni, !ni (spec.md §4.2.3).
type StringIndex struct {
	MaxLength int
	chars     []*bytePlane
	length    *equalityIndex[int]
	size      uint64
}

func NewStringIndex(maxLength int) *StringIndex {
	if maxLength <= 0 {
		maxLength = DefaultMaxStringSize
	}
	return &StringIndex{MaxLength: maxLength, length: newEqualityIndex[int]()}
}

func (s *StringIndex) Size() uint64 { return s.size }

func (s *StringIndex) Append(v view.Value, id uint64) bool {
	str, ok := v.(view.String_)
	if !ok {
		return false
	}
	raw := string(str)
	length := len(raw)
	if length > s.MaxLength {
		length = s.MaxLength
	}
	for len(s.chars) < length {
		s.chars = append(s.chars, newBytePlane())
	}
	for i := 0; i < length; i++ {
		s.chars[i].Append(raw[i], id)
	}
	s.length.Append(length, id)
	s.size = id + 1
	return true
}

func (s *StringIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	str, ok := v.(view.String_)
	if !ok {
		return nil, xerrors.New(xerrors.TypeClash, "string index: expected string operand")
	}
	raw := string(str)
	strSize := len(raw)
	if strSize > s.MaxLength {
		strSize = s.MaxLength
	}
	switch o {
	case op.Equal, op.NotEqual:
		return s.lookupEqual(o, raw, strSize), nil
	case op.Ni, op.NotNi:
		return s.lookupSubstring(o, raw, strSize), nil
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "string index: unsupported operator %s", o)
	}
}

func (s *StringIndex) lookupEqual(o op.RelOp, raw string, strSize int) *bitmap.Bitmap {
	if strSize == 0 {
		result := s.length.Lookup(0)
		if o == op.NotEqual {
			result = bitmap.Not(result, s.size)
		}
		return result
	}
	if strSize > len(s.chars) {
		return bitmap.Repeat(o == op.NotEqual, s.size)
	}
	result := s.length.Lookup(strSize)
	if result.AllZero() {
		return bitmap.Repeat(o == op.NotEqual, s.size)
	}
	for i := 0; i < strSize; i++ {
		eq := s.chars[i].LookupEqual(raw[i])
		result = bitmap.And(result, eq)
		if result.AllZero() {
			return bitmap.Repeat(o == op.NotEqual, s.size)
		}
	}
	if o == op.NotEqual {
		result = bitmap.Not(result, s.size)
	}
	return result
}

func (s *StringIndex) lookupSubstring(o op.RelOp, raw string, strSize int) *bitmap.Bitmap {
	if strSize == 0 {
		return bitmap.Repeat(o == op.Ni, s.size)
	}
	if strSize > len(s.chars) {
		return bitmap.Repeat(o == op.NotNi, s.size)
	}
	result := bitmap.Repeat(false, s.size)
	for start := 0; start <= len(s.chars)-strSize; start++ {
		term := bitmap.Repeat(true, s.size)
		matched := true
		for j := 0; j < strSize; j++ {
			bm := s.chars[start+j].LookupEqual(raw[j])
			if bm.AllZero() {
				matched = false
				break
			}
			term = bitmap.And(term, bm)
		}
		if matched && !term.AllZero() {
			result = bitmap.Or(result, term)
		}
	}
	if o == op.NotNi {
		result = bitmap.Not(result, s.size)
	}
	return result
}

func (s *StringIndex) MemUsage() uint64 {
	acc := s.length.MemUsage()
	for _, c := range s.chars {
		acc += c.MemUsage()
	}
	return acc
}

func (s *StringIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int64(s.MaxLength)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, s.size); err != nil {
		return nil, err
	}
	length, err := s.length.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, length); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(s.chars))); err != nil {
		return nil, err
	}
	for _, c := range s.chars {
		b, err := c.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := writeBlob(&buf, b); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (s *StringIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var maxLen int64
	if err := binary.Read(r, binary.LittleEndian, &maxLen); err != nil {
		return err
	}
	s.MaxLength = int(maxLen)
	if err := binary.Read(r, binary.LittleEndian, &s.size); err != nil {
		return err
	}
	lenBlob, err := readBlob(r)
	if err != nil {
		return err
	}
	s.length = newEqualityIndex[int]()
	if err := s.length.UnmarshalBinary(lenBlob); err != nil {
		return err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	s.chars = make([]*bytePlane, n)
	for i := range s.chars {
		blob, err := readBlob(r)
		if err != nil {
			return err
		}
		s.chars[i] = newBytePlane()
		if err := s.chars[i].UnmarshalBinary(blob); err != nil {
			return err
		}
	}
	return nil
}
