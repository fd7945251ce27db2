package partition_test

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/view"
)

func connLayout() schema.Layout {
	return schema.Layout{
		Name: "zeek.conn",
		Fields: []schema.Field{
			{Name: "id.orig_h", Type: "addr", Offset: 0},
			{Name: "proto", Type: "string", Offset: 1},
		},
	}
}

func addr(s string) view.Address { return view.AddressFromNetIP(net.ParseIP(s)) }

func TestPartitionAppendAndLookup(t *testing.T) {
	layout := connLayout()
	p := partition.New(uuid.New(), layout, 1000, metaindex.SynopsisConfig{}, partition.Limits{})

	err := p.Append(partition.Slice{
		BaseID: 0,
		Rows:   3,
		Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.1"), addr("10.0.0.2"), addr("10.0.0.1")},
			"zeek.conn.proto":     {view.String_("tcp"), view.String_("udp"), view.String_("tcp")},
		},
	})
	require.NoError(t, err)

	bm, err := p.Lookup("zeek.conn.id.orig_h", op.Equal, addr("10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, uint64(3), bm.Size())
	require.True(t, bm.At(0))
	require.False(t, bm.At(1))
	require.True(t, bm.At(2))
}

func TestPartitionSealsOnOversizedSlice(t *testing.T) {
	layout := connLayout()
	p := partition.New(uuid.New(), layout, 2, metaindex.SynopsisConfig{}, partition.Limits{})

	err := p.Append(partition.Slice{
		BaseID: 0,
		Rows:   5,
		Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.1"), addr("10.0.0.1"), addr("10.0.0.1"), addr("10.0.0.1"), addr("10.0.0.1")},
		},
	})
	require.NoError(t, err)
	require.True(t, p.Sealed())

	err = p.Append(partition.Slice{BaseID: 5, Rows: 1})
	require.Error(t, err)
}

func TestPartitionLookupUnknownColumnReturnsEmptyNotError(t *testing.T) {
	layout := connLayout()
	p := partition.New(uuid.New(), layout, 10, metaindex.SynopsisConfig{}, partition.Limits{})
	require.NoError(t, p.Append(partition.Slice{BaseID: 0, Rows: 2}))

	bm, err := p.Lookup("zeek.conn.nonexistent", op.Equal, view.String_("x"))
	require.NoError(t, err)
	require.True(t, bm.AllZero())
}
