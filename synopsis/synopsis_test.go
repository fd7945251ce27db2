package synopsis_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/synopsis"
	"github.com/telescan/telescan/view"
)

func parseIP(s string) net.IP { return net.ParseIP(s) }

// S5 — meta-index pruning building block: a Bloom synopsis must never
// produce a false negative (invariant 5).
func TestBloomSoundPruning(t *testing.T) {
	b := synopsis.NewBloom(100, 0.01)
	b.Add(view.AddressFromNetIP(parseIP("10.0.0.5")))

	present := b.Lookup(op.Equal, view.AddressFromNetIP(parseIP("10.0.0.5")))
	require.NotNil(t, present)
	require.True(t, *present)

	absent := b.Lookup(op.Equal, view.AddressFromNetIP(parseIP("192.168.1.1")))
	require.NotNil(t, absent)
	require.False(t, *absent)

	require.Nil(t, b.Lookup(op.NotEqual, view.AddressFromNetIP(parseIP("10.0.0.5"))))
}

func TestMinMaxRange(t *testing.T) {
	m := synopsis.NewMinMax()
	m.Add(view.Int64(10))
	m.Add(view.Int64(20))

	r := m.Lookup(op.Less, view.Int64(5))
	require.NotNil(t, r)
	require.False(t, *r)

	r = m.Lookup(op.GreaterEqual, view.Int64(15))
	require.NotNil(t, r)
	require.True(t, *r)
}

func TestBoolPair(t *testing.T) {
	b := synopsis.NewBoolPair()
	b.Add(view.Bool(true))
	r := b.Lookup(op.Equal, view.Bool(false))
	require.NotNil(t, r)
	require.False(t, *r)
}
