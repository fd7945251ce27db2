package index

import (
	"bytes"
	"encoding/binary"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// DefaultMaxContainerElements bounds how many list positions are
// indexed (spec.md §6 "max-container-elements").
const DefaultMaxContainerElements = 256

// ElementFactory builds a fresh value index for one list element
// position, matching the list's declared element type.
type ElementFactory func() ValueIndex

// ListIndex grows an array of element-indexes by position, plus a
// length index. It supports only ni/!ni over the element type (spec.md
// §4.2.4).
type ListIndex struct {
	MaxSize  int
	newElem  ElementFactory
	elements []ValueIndex
	length   *equalityIndex[int]
	size     uint64
}

func NewListIndex(maxSize int, newElem ElementFactory) *ListIndex {
	if maxSize <= 0 {
		maxSize = DefaultMaxContainerElements
	}
	return &ListIndex{MaxSize: maxSize, newElem: newElem, length: newEqualityIndex[int]()}
}

func (l *ListIndex) Size() uint64 { return l.size }

func (l *ListIndex) Append(v view.Value, id uint64) bool {
	list, ok := v.(view.List)
	if !ok {
		return false
	}
	seqSize := len(list)
	if seqSize > l.MaxSize {
		seqSize = l.MaxSize
	}
	for len(l.elements) < seqSize {
		l.elements = append(l.elements, l.newElem())
	}
	for i := 0; i < seqSize; i++ {
		l.elements[i].Append(list[i], id)
	}
	l.length.Append(seqSize, id)
	l.size = id + 1
	return true
}

func (l *ListIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	if o != op.Ni && o != op.NotNi {
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "list index: unsupported operator %s", o)
	}
	result := bitmap.Repeat(false, l.size)
	for _, elem := range l.elements {
		bm, err := elem.Lookup(op.Equal, v)
		if err != nil {
			if xerrors.Is(err, xerrors.TypeClash) {
				continue // this position never held a value of v's type
			}
			return nil, err
		}
		result = bitmap.Or(result, bm)
	}
	if o == op.NotNi {
		result = bitmap.Not(result, l.size)
	}
	return result, nil
}

func (l *ListIndex) MemUsage() uint64 {
	acc := l.length.MemUsage()
	for _, e := range l.elements {
		acc += e.MemUsage()
	}
	return acc
}

// MarshalBinary requires every element index to implement Serializable;
// it returns an error for an ElementFactory that produces one that
// doesn't (spec.md §4.2 "Serialize / deserialize to a byte stream").
func (l *ListIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int64(l.MaxSize)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, l.size); err != nil {
		return nil, err
	}
	length, err := l.length.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, length); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(l.elements))); err != nil {
		return nil, err
	}
	for _, e := range l.elements {
		s, ok := e.(Serializable)
		if !ok {
			return nil, xerrors.New(xerrors.FormatError, "list index: element type is not serializable")
		}
		b, err := s.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := writeBlob(&buf, b); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (l *ListIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	var maxSize int64
	if err := binary.Read(r, binary.LittleEndian, &maxSize); err != nil {
		return err
	}
	l.MaxSize = int(maxSize)
	if err := binary.Read(r, binary.LittleEndian, &l.size); err != nil {
		return err
	}
	lenBlob, err := readBlob(r)
	if err != nil {
		return err
	}
	l.length = newEqualityIndex[int]()
	if err := l.length.UnmarshalBinary(lenBlob); err != nil {
		return err
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return err
	}
	l.elements = make([]ValueIndex, n)
	for i := range l.elements {
		blob, err := readBlob(r)
		if err != nil {
			return err
		}
		elem := l.newElem()
		s, ok := elem.(Serializable)
		if !ok {
			return xerrors.New(xerrors.FormatError, "list index: element type is not serializable")
		}
		if err := s.UnmarshalBinary(blob); err != nil {
			return err
		}
		l.elements[i] = elem
	}
	return nil
}
