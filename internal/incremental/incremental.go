// Package incremental batches entity/relation mutations and applies
// them to the lexical and vector indexes without a full rebuild (spec
// §4.15), invalidating the query-plan cache when a batch changes enough
// of the graph that stale cost estimates could mislead the planner.
package incremental

import (
	"sync"

	"github.com/graphmem/graphmem/internal/queryplan"
)

// DefaultBatchSize is the spec §6 default flush trigger.
const DefaultBatchSize = 256

// PlanCacheInvalidateFraction is the spec §6 default: a batch touching
// more than this fraction of the graph invalidates the whole plan cache
// rather than leaving it to go stale silently.
const PlanCacheInvalidateFraction = 0.005

// OpKind distinguishes queued mutation kinds.
type OpKind string

const (
	OpAdd    OpKind = "add"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one queued mutation.
type Op struct {
	Kind OpKind
	Name string
}

// FlushResult reports the outcome of applying a batch.
type FlushResult struct {
	Applied           int
	Failed            int
	PlanCacheInvalidated bool
}

// ApplyFunc applies one batch of ops to the indexes and returns the
// names that were actually touched (may be fewer than requested, if
// some ops failed) along with the first error encountered, if any.
type ApplyFunc func(ops []Op) (applied []string, err error)

// Queue is a FIFO batch queue. Ops accumulate until Flush is called
// explicitly or the queue reaches batchSize.
type Queue struct {
	mu    sync.Mutex
	ops   []Op
	batchSize int

	apply        ApplyFunc
	planCache    *queryplan.Cache
	graphSize    func() int
	consecutiveFailures int
	degraded     bool
}

// New constructs a Queue. graphSize reports the current total entity
// count, used to compute the changed-fraction threshold.
func New(apply ApplyFunc, planCache *queryplan.Cache, graphSize func() int, batchSize int) *Queue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Queue{apply: apply, planCache: planCache, graphSize: graphSize, batchSize: batchSize}
}

// Enqueue appends op to the pending batch, flushing automatically once
// the batch reaches its configured size.
func (q *Queue) Enqueue(op Op) (*FlushResult, error) {
	q.mu.Lock()
	q.ops = append(q.ops, op)
	shouldFlush := len(q.ops) >= q.batchSize
	q.mu.Unlock()

	if shouldFlush {
		return q.Flush()
	}
	return nil, nil
}

// Flush applies every pending op, regardless of batch size, and reports
// the result. After three consecutive fully-failed flushes the queue
// enters a degraded state (IsDegraded) — callers are expected to fall
// back to a full rebuild rather than keep batching.
func (q *Queue) Flush() (*FlushResult, error) {
	q.mu.Lock()
	ops := q.ops
	q.ops = nil
	total := len(ops)
	q.mu.Unlock()

	if total == 0 {
		return &FlushResult{}, nil
	}

	applied, err := q.apply(ops)

	q.mu.Lock()
	defer q.mu.Unlock()

	result := &FlushResult{Applied: len(applied), Failed: total - len(applied)}

	if len(applied) == 0 && err != nil {
		q.consecutiveFailures++
		if q.consecutiveFailures >= 3 {
			q.degraded = true
		}
	} else {
		q.consecutiveFailures = 0
	}

	if q.planCache != nil && q.shouldInvalidatePlanCache(len(applied)) {
		q.planCache.Invalidate()
		result.PlanCacheInvalidated = true
	}

	return result, err
}

func (q *Queue) shouldInvalidatePlanCache(changed int) bool {
	if q.graphSize == nil {
		return false
	}
	size := q.graphSize()
	if size == 0 {
		return changed > 0
	}
	return float64(changed)/float64(size) > PlanCacheInvalidateFraction
}

// Pending reports how many ops are queued but not yet flushed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// IsDegraded reports whether three consecutive flushes have fully
// failed, signaling callers should fall back to a full rebuild.
func (q *Queue) IsDegraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}
