package index

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/telescan/telescan/bitmap"
)

// bytePlane is the "bitslice-coded" per-byte index from spec.md §4.2.1:
// eight bitmaps, one per bit position, so that both equality lookups
// (AND across all eight planes) and subnet residual-bit masking (AND or
// AND-NOT a single plane) are cheap.
type bytePlane struct {
	planes [8]*bitmap.Bitmap // planes[b] is set wherever bit b (LSB=0) is 1
	size   uint64
}

func newBytePlane() *bytePlane {
	bp := &bytePlane{}
	for i := range bp.planes {
		bp.planes[i] = bitmap.New()
	}
	return bp
}

// Append records the byte value v at absolute position id, skipping any
// gap since the last append.
func (bp *bytePlane) Append(v uint8, id uint64) {
	for b := 0; b < 8; b++ {
		p := bp.planes[b]
		if gap := id - p.Size(); gap > 0 {
			p.Skip(gap)
		}
		p.Append((v>>uint(b))&1 == 1, 1)
	}
	bp.size = id + 1
}

func (bp *bytePlane) Size() uint64 { return bp.size }

// Plane returns the raw "bit b is 1" bitmap, used directly for subnet
// residual-bit masking.
func (bp *bytePlane) Plane(bit int) *bitmap.Bitmap { return bp.planes[bit] }

// LookupEqual returns the set of positions whose stored byte equals v,
// short-circuiting as soon as the running intersection goes empty.
func (bp *bytePlane) LookupEqual(v uint8) *bitmap.Bitmap {
	result := bitmap.Repeat(true, bp.size)
	for b := 7; b >= 0; b-- {
		want := (v>>uint(b))&1 == 1
		var cond *bitmap.Bitmap
		if want {
			cond = bp.planes[b]
		} else {
			cond = bitmap.Not(bp.planes[b], bp.size)
		}
		result = bitmap.And(result, cond)
		if result.AllZero() {
			return result
		}
	}
	return result
}

func (bp *bytePlane) MemUsage() uint64 {
	var acc uint64
	for _, p := range bp.planes {
		acc += p.Rank()/8 + 64
	}
	return acc
}

// MarshalBinary serializes the eight bit planes as a fixed header
// (size) followed by eight length-prefixed bitmap blobs.
func (bp *bytePlane) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, bp.size); err != nil {
		return nil, err
	}
	for _, p := range bp.planes {
		b, err := p.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.LittleEndian, uint32(len(b))); err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

func (bp *bytePlane) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &bp.size); err != nil {
		return err
	}
	for i := range bp.planes {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return err
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return err
		}
		p := bitmap.New()
		if err := p.UnmarshalBinary(blob); err != nil {
			return err
		}
		bp.planes[i] = p
	}
	return nil
}
