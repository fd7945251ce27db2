package synopsis

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
	"github.com/telescan/telescan/xerrors"
)

// MinMax is the ordered-type synopsis for timestamps and numerics
// (spec.md §4.3). It answers range operators by checking disjointness
// against the tracked [min, max] bounds.
type MinMax struct {
	have     bool
	min, max float64
}

func NewMinMax() *MinMax { return &MinMax{} }

// orderedValue converts v into a comparable float64, or reports ok=false
// if v is not one of the ordered scalar types.
func orderedValue(v view.Value) (float64, bool) {
	switch x := v.(type) {
	case view.Int64:
		return float64(x), true
	case view.Real:
		return float64(x), true
	case view.Duration:
		return float64(x), true
	case view.Timestamp:
		return float64(time.Time(x).UnixNano()), true
	default:
		return 0, false
	}
}

func (m *MinMax) Add(v view.Value) {
	f, ok := orderedValue(v)
	if !ok {
		return
	}
	if !m.have {
		m.min, m.max, m.have = f, f, true
		return
	}
	if f < m.min {
		m.min = f
	}
	if f > m.max {
		m.max = f
	}
}

func (m *MinMax) Lookup(o op.RelOp, v view.Value) *bool {
	f, ok := orderedValue(v)
	if !ok || !o.Ordered() && o != op.Equal && o != op.NotEqual {
		return nil
	}
	if !m.have {
		return ptr(false)
	}
	switch o {
	case op.Equal:
		return ptr(f >= m.min && f <= m.max)
	case op.NotEqual:
		return nil // a single outlier outside [min,max] doesn't prove != everywhere
	case op.Less:
		return ptr(m.min < f)
	case op.LessEqual:
		return ptr(m.min <= f)
	case op.Greater:
		return ptr(m.max > f)
	case op.GreaterEqual:
		return ptr(m.max >= f)
	default:
		return nil
	}
}

// LookupNegated implements Negatable for the ordered comparisons: a
// negated range query is itself a range query, so MinMax can answer it
// exactly via De Morgan rather than forcing the meta-index to return
// every partition.
func (m *MinMax) LookupNegated(o op.RelOp, v view.Value) *bool {
	return m.Lookup(op.Flip(o), v)
}

func (m *MinMax) MemUsage() uint64 { return 24 }

// MarshalBinary/UnmarshalBinary let the coordinator persist a MinMax
// synopsis inside a partition header without round-tripping every raw
// value (spec.md §4.6 "Persist").
func (m *MinMax) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 17)
	if m.have {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint64(buf[1:9], math.Float64bits(m.min))
	binary.LittleEndian.PutUint64(buf[9:17], math.Float64bits(m.max))
	return buf, nil
}

func (m *MinMax) UnmarshalBinary(data []byte) error {
	if len(data) < 17 {
		return xerrors.New(xerrors.FormatError, "minmax: truncated snapshot")
	}
	m.have = data[0] == 1
	m.min = math.Float64frombits(binary.LittleEndian.Uint64(data[1:9]))
	m.max = math.Float64frombits(binary.LittleEndian.Uint64(data[9:17]))
	return nil
}
