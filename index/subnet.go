package index

import (
	"bytes"
	"encoding/binary"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// SubnetIndex composes a nested address index (for the network) and a
// length-bitmap index (0..128 in the unified address space). It
// supports ==, !=, in (subset), ni (superset), and "ni addr" (spec.md
// §4.2.2).
type SubnetIndex struct {
	network *AddressIndex
	length  *equalityIndex[uint8]
	size    uint64
}

func NewSubnetIndex() *SubnetIndex {
	return &SubnetIndex{network: NewAddressIndex(), length: newEqualityIndex[uint8]()}
}

func (s *SubnetIndex) Size() uint64 { return s.size }

func (s *SubnetIndex) Append(v view.Value, id uint64) bool {
	subnet, ok := v.(view.Subnet)
	if !ok {
		return false
	}
	s.network.Append(subnet.Network, id)
	s.length.Append(subnet.Length, id)
	s.size = id + 1
	return true
}

func (s *SubnetIndex) Lookup(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	switch o {
	case op.Equal, op.NotEqual:
		subnet, ok := v.(view.Subnet)
		if !ok {
			return nil, xerrors.New(xerrors.TypeClash, "subnet index: expected subnet operand")
		}
		netEq, err := s.network.Lookup(op.Equal, subnet.Network)
		if err != nil {
			return nil, err
		}
		lenEq := s.length.Lookup(subnet.Length)
		result := bitmap.And(netEq, lenEq)
		if o == op.NotEqual {
			result = bitmap.Not(result, s.size)
		}
		return result, nil
	case op.In:
		subnet, ok := v.(view.Subnet)
		if !ok {
			return nil, xerrors.New(xerrors.TypeClash, "subnet index: expected subnet operand")
		}
		return s.lookupIn(subnet)
	case op.Ni, op.NotNi:
		return s.lookupNi(o, v)
	default:
		return nil, xerrors.Newf(xerrors.UnsupportedOperator, "subnet index: unsupported operator %s", o)
	}
}

// lookupIn answers "is the stored subnet a subset of rhs?": the stored
// network must match rhs within rhs's prefix length, and the stored
// length must be at least as specific as rhs's.
func (s *SubnetIndex) lookupIn(rhs view.Subnet) (*bitmap.Bitmap, error) {
	maskMatch, err := s.network.Lookup(op.In, rhs)
	if err != nil {
		return nil, err
	}
	lenOK := s.length.LookupPredicate(func(l uint8) bool { return l >= rhs.Length })
	return bitmap.And(maskMatch, lenOK), nil
}

// lookupNi answers "does the stored subnet contain rhs?", where rhs is
// either an address or a narrower subnet. It iterates every possible
// stored prefix length L and, for each, checks that the stored network
// agrees with rhs on its first L bits and that the stored length equals
// L exactly, then ORs the per-length results together (spec.md §4.2.2).
func (s *SubnetIndex) lookupNi(o op.RelOp, v view.Value) (*bitmap.Bitmap, error) {
	var target view.Address
	maxLen := 128
	switch rhs := v.(type) {
	case view.Address:
		target = rhs
	case view.Subnet:
		target = rhs.Network
		maxLen = int(rhs.Length)
	default:
		return nil, xerrors.New(xerrors.TypeClash, "subnet index: expected address or subnet operand")
	}

	result := bitmap.Repeat(false, s.size)
	for l := 0; l <= maxLen; l++ {
		netMatch, err := s.network.Lookup(op.In, view.Subnet{Network: target, Length: uint8(l)})
		if err != nil {
			return nil, err
		}
		lenEq := s.length.Lookup(uint8(l))
		term := bitmap.And(netMatch, lenEq)
		if term.AllZero() {
			continue
		}
		result = bitmap.Or(result, term)
	}
	if o == op.NotNi {
		result = bitmap.Not(result, s.size)
	}
	return result, nil
}

func (s *SubnetIndex) MemUsage() uint64 {
	return s.network.MemUsage() + s.length.MemUsage()
}

func (s *SubnetIndex) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, s.size); err != nil {
		return nil, err
	}
	net, err := s.network.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, net); err != nil {
		return nil, err
	}
	length, err := s.length.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := writeBlob(&buf, length); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SubnetIndex) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.LittleEndian, &s.size); err != nil {
		return err
	}
	netBlob, err := readBlob(r)
	if err != nil {
		return err
	}
	s.network = NewAddressIndex()
	if err := s.network.UnmarshalBinary(netBlob); err != nil {
		return err
	}
	lenBlob, err := readBlob(r)
	if err != nil {
		return err
	}
	s.length = newEqualityIndex[uint8]()
	return s.length.UnmarshalBinary(lenBlob)
}
