package scheduler_test

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/coordinator"
	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/internal/storage"
	"github.com/telescan/telescan/op"
	"github.com/telescan/telescan/partition"
	"github.com/telescan/telescan/schema"
	"github.com/telescan/telescan/scheduler"
	"github.com/telescan/telescan/view"
)

func connLayout() schema.Layout {
	return schema.Layout{
		Name: "zeek.conn",
		Fields: []schema.Field{
			{Name: "id.orig_h", Type: "addr", Offset: 0},
		},
	}
}

func addr(s string) view.Address { return view.AddressFromNetIP(net.ParseIP(s)) }

type recordingHandler struct {
	mu        sync.Mutex
	delivered int
	warned    int
}

func (h *recordingHandler) Deliver(uuid.UUID, *bitmap.Bitmap) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered++
}

func (h *recordingHandler) Warn(uuid.UUID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.warned++
}

func newTenPartitionFixture(t *testing.T) (*coordinator.Coordinator, *scheduler.Scheduler) {
	t.Helper()
	dir := storage.NewMemDir()
	cfg := config.Default().Apply(
		config.WithMaxPartitionSize(1),
		config.WithMaxResidentPartitions(16),
		config.WithTastePartitions(3),
		config.WithMaxQueries(4),
	)
	coord, err := coordinator.Open(cfg, dir, partition.GobCodec{}, metrics.NewRegistry())
	require.NoError(t, err)

	layout := connLayout()
	for i := 0; i < 10; i++ {
		require.NoError(t, coord.Ingest(layout, partition.Slice{
			BaseID: uint64(i),
			Rows:   1,
			Columns: map[string][]view.Value{
				"zeek.conn.id.orig_h": {addr("10.0.0.1")},
			},
		}))
	}
	require.Equal(t, 10, coord.MetaIndex().Size())

	return coord, scheduler.New(coord, cfg, metrics.NewRegistry())
}

// Admit a query whose candidate set has 10 partitions with
// taste_partitions = 3: the reply says scheduled=3. Requesting 4 more
// evaluates 4 with 3 remaining. Sending n=0 erases the pending-query
// state and no further evaluations begin (spec.md §8 scenario S6).
func TestQueryPagingAndCancellation(t *testing.T) {
	_, sched := newTenPartitionFixture(t)
	ctx := context.Background()
	handler := &recordingHandler{}

	e := expr.Predicate{
		LHS: expr.FieldExtractor{Name: "id.orig_h"},
		Op:  op.Equal,
		RHS: expr.Data{Value: addr("10.0.0.1")},
	}

	queryID, total, scheduled, err := sched.Lookup(ctx, e, handler)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, queryID)
	require.Equal(t, 10, total)
	require.Equal(t, 3, scheduled)

	n, err := sched.Schedule(ctx, queryID, 4, handler)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	require.Equal(t, 7, handler.delivered)

	n, err = sched.Schedule(ctx, queryID, 0, handler)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = sched.Schedule(ctx, queryID, 5, handler)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 7, handler.delivered)
}

// An empty candidate set is admitted as (nil_uuid, 0, 0) with no error
// (spec.md §4.8 "If empty, respond with (nil_uuid, 0, 0) and done").
func TestLookupNoCandidatesReturnsNil(t *testing.T) {
	dir := storage.NewMemDir()
	cfg := config.Default()
	coord, err := coordinator.Open(cfg, dir, partition.GobCodec{}, metrics.NewRegistry())
	require.NoError(t, err)
	sched := scheduler.New(coord, cfg, metrics.NewRegistry())

	e := expr.Predicate{
		LHS: expr.FieldExtractor{Name: "id.orig_h"},
		Op:  op.Equal,
		RHS: expr.Data{Value: addr("10.0.0.1")},
	}
	queryID, total, scheduled, err := sched.Lookup(context.Background(), e, &recordingHandler{})
	require.NoError(t, err)
	require.Equal(t, uuid.Nil, queryID)
	require.Equal(t, 0, total)
	require.Equal(t, 0, scheduled)
}
