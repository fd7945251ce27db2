package index

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// AddressIndex stores IPv6-extended addresses as 16 per-byte bit-plane
// indexes plus a v4? boolean bitmap (spec.md §4.2.1).
type AddressIndex struct {
	bytes [16]*bytePlane
	v4    *bitmap.Bitmap
	size  uint64
}

func NewAddressIndex() *AddressIndex {
	a := &AddressIndex{v4: bitmap.New()}
	for i := range a.bytes {
		a.bytes[i] = newBytePlane()
	}
	return a
}

func (a *AddressIndex) Size() uint64 { return a.size }

func (a *AddressIndex) Append(v view.Value, id uint64) bool {
	addr, ok := v.(view.Address)
	if !ok {
		return false
	}
	for i := 0; i < 16; i++ {
		a.bytes[i].Append(addr.Bytes[i], id)
	}
	if gap := id - a.v4.Size(); gap > 0 {
		a.v4.Skip(gap)
	}
	a.v4.Append(addr.IsV4, 1)
	a.size = id + 1
	return true
}

func (a *AddressIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	switch o {
	case op.Equal, op.NotEqual:
		addr, ok := v.(view.Address)
		if !ok {
			return nil, xerrors.New(xerrors.TypeClash, "address index: expected address operand")
		}
		return a.lookupEqual(o, addr), nil
	case op.In, op.NotIn:
		subnet, ok := v.(view.Subnet)
		if !ok {
			return nil, xerrors.New(xerrors.TypeClash, "address index: expected subnet operand")
		}
		return a.lookupSubnet(o, subnet), nil
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "address index: unsupported operator %s", o)
	}
}

func (a *AddressIndex) lookupEqual(o op.RelOp, addr view.Address) *bitmap.Bitmap {
	var result *bitmap.Bitmap
	start := 0
	if addr.IsV4 {
		result = a.v4.Clone()
		start = 12
	} else {
		result = bitmap.Repeat(true, a.size)
	}
	for i := start; i < 16; i++ {
		eq := a.bytes[i].LookupEqual(addr.Bytes[i])
		result = bitmap.And(result, eq)
		if result.AllZero() {
			return bitmap.Repeat(o == op.NotEqual, a.size)
		}
	}
	if o == op.NotEqual {
		result = bitmap.Not(result, a.size)
	}
	return result
}

// lookupSubnet answers "address in subnet" / "address !in subnet":
// mask the prefix into full bytes (AND byte-equality lookups) plus
// residual bits (AND/AND-NOT the straddling byte's bit-plane), per
// spec.md §4.2.1. A /32 or /128 length degenerates to equality.
func (a *AddressIndex) lookupSubnet(o op.RelOp, subnet view.Subnet) *bitmap.Bitmap {
	if subnet.Length == 128 {
		eqOp := op.Equal
		if o == op.NotIn {
			eqOp = op.NotEqual
		}
		return a.lookupEqual(eqOp, subnet.Network)
	}

	var result *bitmap.Bitmap
	i := 0
	topk := int(subnet.Length)
	if subnet.Network.IsV4 {
		result = a.v4.Clone()
		i = 12
		topk -= 96
		if topk < 0 {
			topk = 0
		}
	} else {
		result = bitmap.Repeat(true, a.size)
	}

	net := subnet.Network.Bytes
	for ; i < 16 && topk >= 8; i, topk = i+1, topk-8 {
		result = bitmap.And(result, a.bytes[i].LookupEqual(net[i]))
		if result.AllZero() {
			return bitmap.Repeat(o == op.NotIn, a.size)
		}
	}
	if topk > 0 && i < 16 {
		nb := net[i]
		// mask marks which of the byte's 8 bit positions (MSB-first)
		// fall within the prefix; only those planes are constrained.
		mask := bitset.New(8)
		for bit := uint(8 - topk); bit < 8; bit++ {
			mask.Set(bit)
		}
		for bit, ok := mask.NextSet(0); ok; bit, ok = mask.NextSet(bit + 1) {
			plane := a.bytes[i].Plane(int(bit))
			if (nb>>bit)&1 == 1 {
				result = bitmap.And(result, plane)
			} else {
				result = bitmap.AndNot(result, plane)
			}
			if result.AllZero() {
				return bitmap.Repeat(o == op.NotIn, a.size)
			}
		}
	}
	if o == op.NotIn {
		result = bitmap.Not(result, a.size)
	}
	return result
}

func (a *AddressIndex) MemUsage() uint64 {
	acc := a.v4.Rank()/8 + 64
	for _, b := range a.bytes {
		acc += b.MemUsage()
	}
	return acc
}

func (a *AddressIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, a.size); err != nil {
		return nil, err
	}
	v4, err := a.v4.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, v4); err != nil {
		return nil, err
	}
	for _, bp := range a.bytes {
		b, err := bp.MarshalBinary()
		if err != nil {
			return nil, err
		}
		if err := writeBlob(&buf, b); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (a *AddressIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &a.size); err != nil {
		return err
	}
	v4Blob, err := readBlob(r)
	if err != nil {
		return err
	}
	a.v4 = bitmap.New()
	if err := a.v4.UnmarshalBinary(v4Blob); err != nil {
		return err
	}
	for i := range a.bytes {
		blob, err := readBlob(r)
		if err != nil {
			return err
		}
		a.bytes[i] = newBytePlane()
		if err := a.bytes[i].UnmarshalBinary(blob); err != nil {
			return err
		}
	}
	return nil
}

// writeBlob/readBlob are the shared length-prefixed-blob helpers every
// composite index's Marshal/UnmarshalBinary builds on.
func writeBlob(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlob(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	blob := make([]byte, n)
	if _, err := io.ReadFull(r, blob); err != nil {
		return nil, err
	}
	return blob, nil
}
