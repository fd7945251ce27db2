// Package view defines the data literals that flow into value-index
// Append/Lookup calls and out of the expression parser: addresses,
// subnets, strings, lists, enums, booleans, and the scalar types ordered
// synopses operate on (spec.md §3 "Operand = Data ...", §6 "Data
// literals").
package view

import (
	"fmt"
	"net"
	"time"
)

// Value is any data literal. It is a closed set by convention (not by
// sealed interface, since value indexes need to type-switch on concrete
// literal types and Go has no closed sum types); the Kind method lets
// callers avoid repeating type switches.
type Value interface {
	Kind() string
	String() string
}

// Address is a unified 16-byte IPv6-shaped address; IPv4 addresses are
// stored IPv4-in-IPv6 mapped (low 4 bytes) with IsV4 recording the
// original representation (spec.md §4.2.1).
type Address struct {
	Bytes [16]byte
	IsV4  bool
}

func AddressFromNetIP(ip net.IP) Address {
	var a Address
	if v4 := ip.To4(); v4 != nil {
		copy(a.Bytes[12:], v4)
		a.IsV4 = true
		return a
	}
	v6 := ip.To16()
	copy(a.Bytes[:], v6)
	return a
}

func (a Address) Kind() string { return "address" }
func (a Address) String() string {
	if a.IsV4 {
		return net.IP(a.Bytes[12:16]).String()
	}
	return net.IP(a.Bytes[:]).String()
}

// Equal reports byte-for-byte equality (v4-mapped bytes included).
func (a Address) Equal(b Address) bool { return a.Bytes == b.Bytes }

// Subnet is a network address plus a prefix length in bits, expressed in
// the unified 128-bit address space (so an IPv4 /24 has Length 120).
type Subnet struct {
	Network Address
	Length  uint8 // 0..128 in unified space
}

func SubnetFromIPNet(n *net.IPNet) Subnet {
	ones, bits := n.Mask.Size()
	addr := AddressFromNetIP(n.IP)
	length := ones
	if bits == 32 {
		length += 96
	}
	return Subnet{Network: addr, Length: uint8(length)}
}

func (s Subnet) Kind() string { return "subnet" }
func (s Subnet) String() string {
	length := int(s.Length)
	if s.Network.IsV4 {
		length -= 96
	}
	return fmt.Sprintf("%s/%d", s.Network.String(), length)
}

// Bits returns the prefix length measured from the start of the
// representation relevant to the address's own family (32 for v4, 128
// for v6), i.e. the "natural" CIDR length.
func (s Subnet) Bits() int {
	if s.Network.IsV4 {
		return int(s.Length) - 96
	}
	return int(s.Length)
}

// String_ is the plain telemetry string type. Named with a trailing
// underscore to avoid colliding with the builtin string; String_.Value
// is the payload.
type String_ string

func (s String_) Kind() string   { return "string" }
func (s String_) String() string { return string(s) }

// List is an ordered, homogeneous sequence of values.
type List []Value

func (l List) Kind() string { return "list" }
func (l List) String() string {
	s := "["
	for i, v := range l {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s + "]"
}

// Enum is a value from a closed set of named codes.
type Enum struct {
	Name string
	Code uint32
}

func (e Enum) Kind() string   { return "enum" }
func (e Enum) String() string { return e.Name }

// Bool is the telemetry boolean type (distinct from Go bool so it
// implements Value).
type Bool bool

func (b Bool) Kind() string { return "bool" }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Int64 is a signed integer literal.
type Int64 int64

func (i Int64) Kind() string   { return "int" }
func (i Int64) String() string { return fmt.Sprintf("%d", int64(i)) }

// Real is a signed floating point literal.
type Real float64

func (r Real) Kind() string   { return "real" }
func (r Real) String() string { return fmt.Sprintf("%g", float64(r)) }

// Duration is a signed duration literal.
type Duration time.Duration

func (d Duration) Kind() string   { return "duration" }
func (d Duration) String() string { return time.Duration(d).String() }

// Timestamp is an absolute point in time.
type Timestamp time.Time

func (t Timestamp) Kind() string   { return "time" }
func (t Timestamp) String() string { return time.Time(t).Format(time.RFC3339Nano) }

// Port is a transport-layer port number plus protocol tag.
type Port struct {
	Number uint16
	Proto  string // "tcp", "udp", "icmp", "icmp6", "sctp", "?"
}

func (p Port) Kind() string   { return "port" }
func (p Port) String() string { return fmt.Sprintf("%d/%s", p.Number, p.Proto) }
