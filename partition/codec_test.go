package partition_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/metaindex"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/view"
)

// Round-trips a sealed partition through GobCodec + Restore and checks
// that lookups answer identically (spec.md §4.7 "read the partition
// header to recover its synopsis").
func TestPartitionRoundTripPersistAndRestore(t *testing.T) {
	layout := connLayout()
	id := uuid.New()
	p := partition.New(id, layout, 10, metaindex.SynopsisConfig{}, partition.Limits{})
	require.NoError(t, p.Append(partition.Slice{
		BaseID: 0,
		Rows:   3,
		Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.1"), addr("10.0.0.2"), addr("10.0.0.1")},
			"zeek.conn.proto":     {view.String_("tcp"), view.String_("udp"), view.String_("tcp")},
		},
	}))

	header, err := p.Header()
	require.NoError(t, err)
	blobs, err := p.MarshalIndexes()
	require.NoError(t, err)

	var buf bytes.Buffer
	codec := partition.GobCodec{}
	require.NoError(t, codec.Encode(&buf, header, blobs))

	gotHeader, gotBlobs, err := codec.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, id, gotHeader.ID)

	restored, err := partition.Restore(gotHeader, gotBlobs, metaindex.SynopsisConfig{}, partition.Limits{})
	require.NoError(t, err)

	bm, err := restored.Lookup("zeek.conn.id.orig_h", op.Equal, addr("10.0.0.1"))
	require.NoError(t, err)
	require.Equal(t, []uint64{0, 2}, bm.ToSortedSlice())

	require.NotNil(t, restored.Synopsis.FieldSynopses["zeek.conn.id.orig_h"])
}
