// Package bitmap implements the compressed, ID-indexed boolean sequence
// that every value index and synopsis is built on (spec.md §4.1).
//
// The representation is github.com/RoaringBitmap/roaring/v2/roaring64: a
// run-length/container-compressed bitmap keyed by uint64, the same
// family of structure erigon-lib uses for its inverted indexes. Bitmap
// adds the VAST-shaped append/skip discipline (append relative to a
// tracked logical size) and the short-circuit helpers the value-index
// family relies on (AllZero).
package bitmap

import (
	"bytes"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Bitmap is a compressed sequence of bits indexed by ID. The zero value
// is an empty, zero-length bitmap ready to use.
type Bitmap struct {
	bits *roaring64.Bitmap
	size uint64
}

// New returns an empty bitmap of size 0.
func New() *Bitmap {
	return &Bitmap{bits: roaring64.New()}
}

// Repeat returns a bitmap of n bits all set to bit.
func Repeat(bit bool, n uint64) *Bitmap {
	b := New()
	b.Append(bit, n)
	return b
}

func (b *Bitmap) ensure() {
	if b.bits == nil {
		b.bits = roaring64.New()
	}
}

// Size reports the logical bit count: one more than the highest ID ever
// appended.
func (b *Bitmap) Size() uint64 { return b.size }

// Append adds n copies of bit to the end of the bitmap.
func (b *Bitmap) Append(bit bool, n uint64) {
	b.ensure()
	if n == 0 {
		return
	}
	if bit {
		b.bits.AddRange(b.size, b.size+n)
	}
	b.size += n
}

// Skip appends n zero-bits; equivalent to Append(false, n). Used to
// realign a per-column bitmap to the current global ID when a column was
// absent from preceding rows.
func (b *Bitmap) Skip(n uint64) { b.Append(false, n) }

// Set sets the bit at id within the current size (id must be < Size()).
func (b *Bitmap) Set(id uint64, bit bool) {
	b.ensure()
	if bit {
		b.bits.Add(id)
	} else {
		b.bits.Remove(id)
	}
}

// At returns the value of the bit at position i.
func (b *Bitmap) At(i uint64) bool {
	if b.bits == nil || i >= b.size {
		return false
	}
	return b.bits.Contains(i)
}

// Rank returns the number of set bits.
func (b *Bitmap) Rank() uint64 {
	if b.bits == nil {
		return 0
	}
	return b.bits.GetCardinality()
}

// AllZero reports whether no bits are set; used to short-circuit AND
// chains in the value-index lookup implementations.
func (b *Bitmap) AllZero() bool {
	return b.bits == nil || b.bits.IsEmpty()
}

// Clone returns an independent deep copy.
func (b *Bitmap) Clone() *Bitmap {
	out := &Bitmap{size: b.size}
	if b.bits != nil {
		out.bits = b.bits.Clone()
	} else {
		out.bits = roaring64.New()
	}
	return out
}

// And returns the logical AND of b and other; the result's size is the
// larger of the two operand sizes, matching the append-only discipline
// used to realign bitmaps of unequal length.
func And(a, b *Bitmap) *Bitmap {
	out := a.Clone()
	if b.bits != nil {
		out.bits.And(b.bits)
	} else {
		out.bits = roaring64.New()
	}
	out.size = maxU64(a.size, b.size)
	return out
}

// Or returns the logical OR of a and b.
func Or(a, b *Bitmap) *Bitmap {
	out := a.Clone()
	if b.bits != nil {
		out.bits.Or(b.bits)
	}
	out.size = maxU64(a.size, b.size)
	return out
}

// Xor returns the logical XOR of a and b.
func Xor(a, b *Bitmap) *Bitmap {
	out := a.Clone()
	if b.bits != nil {
		out.bits.Xor(b.bits)
	}
	out.size = maxU64(a.size, b.size)
	return out
}

// AndNot returns a AND NOT b (set difference), used to implement masked
// bit-plane lookups without materializing an intermediate complement.
func AndNot(a, b *Bitmap) *Bitmap {
	out := a.Clone()
	if b.bits != nil {
		out.bits.AndNot(b.bits)
	}
	return out
}

// Not returns the complement of b relative to size (independent of
// b.Size()); every bit in [0, size) not set in b becomes set.
func Not(b *Bitmap, size uint64) *Bitmap {
	out := b.Clone()
	out.Flip(size)
	return out
}

// Flip complements the bitmap in place relative to size, extending or
// truncating its logical size to size.
func (b *Bitmap) Flip(size uint64) {
	b.ensure()
	flipped := roaring64.Flip(b.bits, 0, size)
	b.bits = flipped
	b.size = size
}

// AndInPlace intersects b with other, mutating b.
func (b *Bitmap) AndInPlace(other *Bitmap) {
	b.ensure()
	if other.bits != nil {
		b.bits.And(other.bits)
	} else {
		b.bits = roaring64.New()
	}
	if other.size > b.size {
		b.size = other.size
	}
}

// OrInPlace unions b with other, mutating b.
func (b *Bitmap) OrInPlace(other *Bitmap) {
	b.ensure()
	if other.bits != nil {
		b.bits.Or(other.bits)
	}
	if other.size > b.size {
		b.size = other.size
	}
}

// Equal reports whether a and b have the same size and the same set
// bits. Encoding is deterministic given the same append sequence, so
// this also serves as the canonical equality test for tests.
func Equal(a, b *Bitmap) bool {
	if a.size != b.size {
		return false
	}
	ab, bb := a.bits, b.bits
	if ab == nil {
		ab = roaring64.New()
	}
	if bb == nil {
		bb = roaring64.New()
	}
	return ab.Equals(bb)
}

// MarshalBinary serializes the bitmap deterministically: a fixed-width
// size header followed by the roaring container stream.
func (b *Bitmap) MarshalBinary() ([]byte, error) {
	b.ensure()
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], b.size)
	buf.Write(hdr[:])
	if _, err := b.bits.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary is the inverse of MarshalBinary.
func (b *Bitmap) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		b.size = 0
		b.bits = roaring64.New()
		return nil
	}
	b.size = binary.LittleEndian.Uint64(data[:8])
	b.bits = roaring64.New()
	_, err := b.bits.ReadFrom(bytes.NewReader(data[8:]))
	return err
}

// ToSortedSlice materializes the set bit positions in ascending order.
func (b *Bitmap) ToSortedSlice() []uint64 {
	if b.bits == nil {
		return nil
	}
	return b.bits.ToArray()
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
