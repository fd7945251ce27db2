package index_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/index"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/view"
)

func addr(s string) view.Address {
	return view.AddressFromNetIP(net.ParseIP(s))
}

func subnet(s string) view.Subnet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return view.SubnetFromIPNet(n)
}

func ids(bm interface{ ToSortedSlice() []uint64 }) []uint64 {
	return bm.ToSortedSlice()
}

// S1 — address equality with v4/v6 mix.
func TestAddressEqualityV4V6Mix(t *testing.T) {
	idx := index.NewAddressIndex()
	addrs := []view.Address{addr("10.0.0.1"), addr("::1"), addr("10.0.0.1"), addr("10.0.0.2")}
	for i, a := range addrs {
		require.True(t, idx.Append(a, uint64(i)))
	}

	bm, err := idx.Lookup(op.Equal, addr("10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, ids(bm))

	bm, err = idx.Lookup(op.Equal, addr("::1"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids(bm))

	bm, err = idx.Lookup(op.NotEqual, addr("10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3}, ids(bm))
}

// S2 — subnet containment.
func TestAddressSubnetContainment(t *testing.T) {
	idx := index.NewAddressIndex()
	addrs := []view.Address{addr("1.2.3.4"), addr("1.2.3.5"), addr("1.2.4.0"), addr("10.0.0.1")}
	for i, a := range addrs {
		require.True(t, idx.Append(a, uint64(i)))
	}

	bm, err := idx.Lookup(op.In, subnet("1.2.3.0/24"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1}, ids(bm))

	bm, err = idx.Lookup(op.In, subnet("0.0.0.0/0"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 1, 2, 3}, ids(bm))
}

// S3 — string substring.
func TestStringSubstring(t *testing.T) {
	idx := index.NewStringIndex(0)
	strs := []string{"foobar", "bar", "xfoox", "foo"}
	for i, s := range strs {
		require.True(t, idx.Append(view.String_(s), uint64(i)))
	}

	bm, err := idx.Lookup(op.Ni, view.String_("foo"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2, 3}, ids(bm))

	bm, err = idx.Lookup(op.Equal, view.String_("foo"))
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, ids(bm))

	bm, err = idx.Lookup(op.NotNi, view.String_("foo"))
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, ids(bm))
}

func TestListIndexContains(t *testing.T) {
	idx := index.NewListIndex(0, func() index.ValueIndex { return index.NewStringIndex(0) })
	rows := []view.List{
		{view.String_("a"), view.String_("b")},
		{view.String_("c")},
		{view.String_("b"), view.String_("b")},
	}
	for i, r := range rows {
		require.True(t, idx.Append(r, uint64(i)))
	}
	bm, err := idx.Lookup(op.Ni, view.String_("b"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, ids(bm))
}

func TestBoolIndex(t *testing.T) {
	idx := index.NewBoolIndex()
	vals := []bool{true, false, true, true}
	for i, v := range vals {
		idx.Append(view.Bool(v), uint64(i))
	}
	bm, err := idx.Lookup(op.Equal, view.Bool(true))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2, 3}, ids(bm))
	require.True(t, idx.AnyTrue())
	require.True(t, idx.AnyFalse())
}
