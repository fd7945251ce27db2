package coordinator_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/coordinator"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/internal/storage"
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

func newTestCoordinator(t *testing.T, maxPartitionSize uint64) (*coordinator.Coordinator, *storage.MemDir) {
	t.Helper()
	dir := storage.NewMemDir()
	cfg := config.Default().Apply(
		config.WithMaxPartitionSize(maxPartitionSize),
		config.WithMaxResidentPartitions(4),
	)
	var fatalErr error
	c, err := coordinator.Open(cfg, dir, partition.GobCodec{}, metrics.NewRegistry(),
		coordinator.WithFatal(func(err error) { fatalErr = err }))
	require.NoError(t, err)
	require.NoError(t, fatalErr)
	return c, dir
}

// After ingesting N slices with a total of R rows, the coordinator's
// per-layout event count (Stats) equals R (spec.md §8 invariant 7).
func TestIngestPreservesTotalRowCount(t *testing.T) {
	c, _ := newTestCoordinator(t, 3)
	layout := connLayout()

	slices := []partition.Slice{
		{BaseID: 0, Rows: 2, Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.1"), addr("10.0.0.2")},
		}},
		{BaseID: 2, Rows: 2, Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.3"), addr("10.0.0.4")},
		}},
		{BaseID: 4, Rows: 5, Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.5"), addr("10.0.0.6"), addr("10.0.0.7"), addr("10.0.0.8"), addr("10.0.0.9")},
		}},
	}

	var total uint64
	for _, s := range slices {
		require.NoError(t, c.Ingest(layout, s))
		total += uint64(s.Rows)
	}

	stats := c.Stats()
	require.Equal(t, total, stats[layout.Name])
}

// Ingesting a slice larger than the active partition's remaining
// capacity rotates first rather than splitting the slice, per spec.md
// §4.7's stream-stage algorithm.
func TestIngestRotatesBeforeOversizedSlice(t *testing.T) {
	c, _ := newTestCoordinator(t, 2)
	layout := connLayout()

	require.NoError(t, c.Ingest(layout, partition.Slice{
		BaseID: 0, Rows: 1,
		Columns: map[string][]view.Value{"zeek.conn.id.orig_h": {addr("10.0.0.1")}},
	}))
	require.NoError(t, c.Ingest(layout, partition.Slice{
		BaseID: 1, Rows: 5,
		Columns: map[string][]view.Value{
			"zeek.conn.id.orig_h": {addr("10.0.0.2"), addr("10.0.0.3"), addr("10.0.0.4"), addr("10.0.0.5"), addr("10.0.0.6")},
		},
	}))

	require.Equal(t, uint64(6), c.Stats()[layout.Name])
	require.GreaterOrEqual(t, c.MetaIndex().Size(), 1)
}
