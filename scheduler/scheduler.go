// Package scheduler implements query admission and paging: candidate
// selection via the meta-index, batched per-partition evaluation over a
// bounded worker pool, and the paging/cancellation protocol clients
// drive (spec.md §4.8).
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/telescan/telescan/bitmap"
	"github.com/telescan/telescan/config"
	"github.com/telescan/telescan/coordinator"
	"github.com/telescan/telescan/event"
	"github.com/telescan/telescan/expr"
	"github.com/telescan/telescan/internal/metrics"
	"github.com/telescan/telescan/log"
	"github.com/telescan/telescan/xerrors"
)

// WorkerIdle is published on Scheduler.Feed each time an evaluation
// worker finishes its partition and returns to the pool (spec.md §2
// "worker became idle" notification, adapted from go-ethereum's
// event.Feed).
type WorkerIdle struct {
	Partition uuid.UUID
}

// ResultHandler receives the hit-set stream for one admitted query. A
// single handler instance is reused across every Schedule call for the
// same query_id (spec.md §6 "streams hits(bitmap) messages").
type ResultHandler interface {
	Deliver(partitionID uuid.UUID, bm *bitmap.Bitmap)
	Warn(partitionID uuid.UUID, err error)
}

// QueryState is the paging cursor for one admitted query: the
// normalized expression (re-tailored per partition by each worker) and
// the FIFO of candidate partitions not yet scheduled.
type QueryState struct {
	Expr      expr.Expression
	Remaining []uuid.UUID
	Total     int
}

// Scheduler owns query admission and the worker pool. It is safe for
// concurrent use by many clients.
type Scheduler struct {
	mu sync.Mutex

	coord   *coordinator.Coordinator
	cfg     config.Config
	metrics *metrics.Registry
	log     log.Logger
	sem     *semaphore.Weighted

	pending map[uuid.UUID]*QueryState
	feed    event.Feed[WorkerIdle]
}

// Subscribe registers ch to receive a WorkerIdle notification each time
// an evaluation worker finishes a partition. The returned Subscription
// must be released with Unsubscribe.
func (s *Scheduler) Subscribe(ch chan WorkerIdle) *event.Subscription[WorkerIdle] {
	return s.feed.Subscribe(ch)
}

// New builds a Scheduler whose worker pool is bounded by cfg.MaxQueries
// (spec.md §6 "max-queries — worker pool size").
func New(coord *coordinator.Coordinator, cfg config.Config, reg *metrics.Registry) *Scheduler {
	workers := cfg.MaxQueries
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		coord:   coord,
		cfg:     cfg,
		metrics: reg,
		log:     log.New("component", "scheduler"),
		sem:     semaphore.NewWeighted(int64(workers)),
		pending: make(map[uuid.UUID]*QueryState),
	}
}

// Lookup admits a query: it resolves candidates from the meta-index,
// assigns a query id, and schedules the first taste-partitions batch
// (spec.md §4.8 "Query admission"). An empty candidate set returns
// (uuid.Nil, 0, 0, nil) — the caller's "done" with no hits.
func (s *Scheduler) Lookup(ctx context.Context, e expr.Expression, handler ResultHandler) (uuid.UUID, int, int, error) {
	if err := expr.Validate(e); err != nil {
		return uuid.Nil, 0, 0, err
	}
	normalized := expr.Normalize(e)
	metaExpr, err := s.tailorForMetaIndex(normalized)
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	candidates := s.coord.MetaIndex().Lookup(metaExpr)
	if len(candidates) == 0 {
		return uuid.Nil, 0, 0, nil
	}

	queryID := s.newQueryID()
	s.mu.Lock()
	s.pending[queryID] = &QueryState{
		Expr:      normalized,
		Remaining: candidates,
		Total:     len(candidates),
	}
	s.reportPendingLocked()
	s.mu.Unlock()

	scheduled, err := s.Schedule(ctx, queryID, s.cfg.TastePartitions, handler)
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	return queryID, len(candidates), scheduled, nil
}

// tailorForMetaIndex resolves e's symbolic field/type/attribute operands
// against every layout seen so far, since a DataExtractor's qualified
// name (what the meta-index's per-field synopses are keyed by) is only
// meaningful relative to one layout. The meta-index's conservative
// pruning means ORing in a layout that doesn't actually contain the
// matching partitions costs nothing: that layout's partitions have no
// synopsis under the resulting qualified name, so partitionMayMatch
// treats them as "cannot prune" rather than as a false include that
// later escapes detection — the per-partition tailor/evaluate stage
// still resolves each partition against its own real layout. A field
// reference that matches no layout at all is an invalid_query, reported
// to the caller rather than silently admitting every partition.
func (s *Scheduler) tailorForMetaIndex(e expr.Expression) (expr.Expression, error) {
	layouts := s.coord.Layouts()
	if len(layouts) == 0 {
		return expr.Empty{}, nil
	}
	variants := make([]expr.Expression, 0, len(layouts))
	var lastErr error
	for _, l := range layouts {
		t, err := expr.Tailor(e, l)
		if err != nil {
			lastErr = err
			continue
		}
		variants = append(variants, expr.Normalize(t))
	}
	switch len(variants) {
	case 0:
		return nil, lastErr
	case 1:
		return variants[0], nil
	default:
		return expr.Disjunction{Children: variants}, nil
	}
}

// newQueryID returns a random id distinct from every pending query and
// from uuid.Nil (spec.md §4.8 step 2).
func (s *Scheduler) newQueryID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := uuid.New()
		if id == uuid.Nil {
			continue
		}
		if _, taken := s.pending[id]; taken {
			continue
		}
		return id
	}
}

// Schedule takes up to n partitions from the front of query_id's
// remaining candidates, preferring ones already resident in memory, and
// evaluates them on the bounded worker pool (spec.md §4.8 "Scheduling
// step"). n == 0 cancels the query: its state is erased and no further
// evaluation begins, per the cancellation protocol (spec.md §5).
// Workers already dispatched by an earlier Schedule call are unaffected.
func (s *Scheduler) Schedule(ctx context.Context, queryID uuid.UUID, n int, handler ResultHandler) (int, error) {
	if n == 0 {
		s.mu.Lock()
		delete(s.pending, queryID)
		s.reportPendingLocked()
		s.mu.Unlock()
		return 0, nil
	}

	s.mu.Lock()
	qs, ok := s.pending[queryID]
	if !ok {
		s.mu.Unlock()
		s.log.Warn("schedule: unknown query", "query", queryID)
		return 0, nil
	}
	batch := s.takeBatchLocked(qs, n)
	if len(qs.Remaining) == 0 {
		delete(s.pending, queryID)
	}
	s.reportPendingLocked()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range batch {
		id := id
		if err := s.sem.Acquire(gctx, 1); err != nil {
			return 0, err
		}
		if s.metrics != nil {
			s.metrics.WorkerOccupancy.Inc()
		}
		g.Go(func() error {
			defer s.sem.Release(1)
			defer func() {
				if s.metrics != nil {
					s.metrics.WorkerOccupancy.Dec()
				}
				s.feed.Send(WorkerIdle{Partition: id})
			}()
			return s.evaluatePartition(gctx, id, qs.Expr, handler)
		})
	}
	if err := g.Wait(); err != nil {
		return len(batch), err
	}
	return len(batch), nil
}

func (s *Scheduler) reportPendingLocked() {
	if s.metrics != nil {
		s.metrics.PendingQueries.Set(float64(len(s.pending)))
	}
}

// takeBatchLocked removes up to n UUIDs from qs.Remaining and returns
// them, partitions already resident in memory ordered before those that
// would require a disk load, each group keeping its relative FIFO order
// (spec.md §4.8 "preferring those already in memory... stable partition").
func (s *Scheduler) takeBatchLocked(qs *QueryState, n int) []uuid.UUID {
	if n > len(qs.Remaining) {
		n = len(qs.Remaining)
	}
	resident := make([]uuid.UUID, 0, len(qs.Remaining))
	rest := make([]uuid.UUID, 0, len(qs.Remaining))
	for _, id := range qs.Remaining {
		if s.coord.Resident(id) {
			resident = append(resident, id)
		} else {
			rest = append(rest, id)
		}
	}
	ordered := append(resident, rest...)
	batch := append([]uuid.UUID(nil), ordered[:n]...)

	taken := make(map[uuid.UUID]bool, len(batch))
	for _, id := range batch {
		taken[id] = true
	}
	remaining := make([]uuid.UUID, 0, len(qs.Remaining)-len(batch))
	for _, id := range qs.Remaining {
		if !taken[id] {
			remaining = append(remaining, id)
		}
	}
	qs.Remaining = remaining
	return batch
}

// evaluatePartition performs one partition's worker share: resolve,
// tailor, normalize, evaluate, deliver (spec.md §4.8
// "Per-partition evaluation"). A partition-local failure (resolve,
// tailor, or evaluate) is reported through handler.Warn and logged; it
// never aborts the batch (spec.md §7 "does not abort the coordinator" /
// "timed-out partition yields an error the worker reports as done with
// a logged warning"). Only context cancellation propagates as an error.
func (s *Scheduler) evaluatePartition(ctx context.Context, id uuid.UUID, normalized expr.Expression, handler ResultHandler) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.coord.Pin(id)
	defer s.coord.Unpin(id)

	p, err := s.coord.Resolve(id)
	if err != nil {
		s.log.Warn("partition resolve failed", "partition", id, "err", err)
		handler.Warn(id, err)
		return nil
	}
	layout, ok := s.coord.Layout(id)
	if !ok {
		err := xerrors.Newf(xerrors.LogicError, "scheduler: unknown layout for partition %s", id)
		s.log.Warn("partition evaluation failed", "partition", id, "err", err)
		handler.Warn(id, err)
		return nil
	}

	tailored, err := expr.Tailor(normalized, layout)
	if err != nil {
		s.log.Warn("partition tailor failed", "partition", id, "err", err)
		handler.Warn(id, err)
		return nil
	}
	tailored = expr.Normalize(tailored)

	bm, err := expr.Evaluate(tailored, p.IDs.Count, func(pred expr.Predicate) (*bitmap.Bitmap, error) {
		de, ok := pred.LHS.(expr.DataExtractor)
		if !ok {
			return nil, xerrors.New(xerrors.LogicError, "scheduler: predicate lhs is not a resolved column")
		}
		data, ok := pred.RHS.(expr.Data)
		if !ok {
			return nil, xerrors.New(xerrors.TypeClash, "scheduler: predicate rhs is not a literal")
		}
		return p.Lookup(de.Name, pred.Op, data.Value)
	})
	if err != nil {
		s.log.Warn("partition evaluation failed", "partition", id, "err", err)
		handler.Warn(id, err)
		return nil
	}

	handler.Deliver(id, bm)
	return nil
}

// Pending reports the number of admitted queries with partitions left
// to schedule.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
