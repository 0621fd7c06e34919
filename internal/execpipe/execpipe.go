// Package execpipe runs a query plan's layers concurrently, tolerating
// partial layer failure and supporting early termination once results
// are adequate (spec §4.13).
package execpipe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/hybrid"
)

// LayerFunc executes one search layer and returns its raw results.
type LayerFunc func(ctx context.Context) ([]hybrid.LayerResult, error)

// DefaultLayerTimeout bounds how long any single layer may run (spec §6).
const DefaultLayerTimeout = 3 * time.Second

// Timing records whether a layer completed, timed out, or errored.
type Timing struct {
	Duration time.Duration
	TimedOut bool
	Err      error
}

// Outcome is the aggregate result of running a plan's layers.
type Outcome struct {
	Results     map[string][]hybrid.LayerResult
	LayerTiming map[string]Timing
}

// AdequacyFunc decides whether an in-progress Outcome already has enough
// signal to stop waiting on slower layers. RunAdaptive consults it after
// each layer completes while other layers are still running. It is never
// consulted for a query with an outstanding symbolic filter: such a query
// never terminates early, since narrowing could still drop today's best
// candidate.
type AdequacyFunc func(partial map[string][]hybrid.LayerResult) bool

// Run executes every named layer concurrently with a shared per-layer
// timeout. A layer's own error is recorded but does not fail the whole
// pipeline — only when every layer fails does Run return
// RetrievalUnavailable.
func Run(ctx context.Context, layers map[string]LayerFunc, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultLayerTimeout
	}

	var mu sync.Mutex
	outcome := Outcome{
		Results:     make(map[string][]hybrid.LayerResult, len(layers)),
		LayerTiming: make(map[string]Timing, len(layers)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, fn := range layers {
		name, fn := name, fn
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			start := time.Now()
			results, err := fn(lctx)
			timing := Timing{Duration: time.Since(start), Err: err}
			if err != nil && lctx.Err() == context.DeadlineExceeded {
				timing.TimedOut = true
			}

			mu.Lock()
			outcome.LayerTiming[name] = timing
			if err == nil {
				outcome.Results[name] = results
			}
			mu.Unlock()
			return nil // layer failures never abort the group; see RetrievalUnavailable check below
		})
	}

	if err := g.Wait(); err != nil {
		return outcome, err
	}

	if len(layers) > 0 && len(outcome.Results) == 0 {
		return outcome, errs.New(errs.KindRetrievalUnavailable, "every search layer failed or timed out")
	}
	return outcome, nil
}

// RunAdaptive behaves like Run, but cancels still-running layers as soon
// as adequate checks true — UNLESS hasSymbolicFilter is set, since a
// pending filter could still exclude today's best unfiltered candidate
// (spec §4.13). Layers that were cancelled rather than completed are
// recorded with TimedOut=false and a context.Canceled error, not folded
// into the RetrievalUnavailable all-failed check.
func RunAdaptive(ctx context.Context, layers map[string]LayerFunc, timeout time.Duration, hasSymbolicFilter bool, adequate AdequacyFunc) (Outcome, error) {
	if timeout <= 0 {
		timeout = DefaultLayerTimeout
	}
	if adequate == nil || hasSymbolicFilter {
		return Run(ctx, layers, timeout)
	}

	runCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	var mu sync.Mutex
	outcome := Outcome{
		Results:     make(map[string][]hybrid.LayerResult, len(layers)),
		LayerTiming: make(map[string]Timing, len(layers)),
	}
	remaining := len(layers)

	g, gctx := errgroup.WithContext(runCtx)
	for name, fn := range layers {
		name, fn := name, fn
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			start := time.Now()
			results, err := fn(lctx)
			timing := Timing{Duration: time.Since(start), Err: err}
			if err != nil && lctx.Err() == context.DeadlineExceeded {
				timing.TimedOut = true
			}

			mu.Lock()
			outcome.LayerTiming[name] = timing
			if err == nil {
				outcome.Results[name] = results
			}
			remaining--
			done := remaining == 0
			var adequateNow bool
			if !done {
				adequateNow = adequate(outcome.Results)
			}
			mu.Unlock()

			if adequateNow {
				cancelAll()
			}
			return nil
		})
	}

	_ = g.Wait() // context cancellation from cancelAll is expected, not a failure

	mu.Lock()
	defer mu.Unlock()
	if len(layers) > 0 && len(outcome.Results) == 0 {
		return outcome, errs.New(errs.KindRetrievalUnavailable, "every search layer failed or timed out")
	}
	return outcome, nil
}

// Combine fuses an Outcome's layer results via the hybrid combiner, a
// thin convenience wrapper so callers don't have to import both packages
// for the common path.
func Combine(outcome Outcome, weights map[string]float64, minScore float64) []hybrid.Combined {
	return hybrid.Combine(outcome.Results, weights, minScore)
}
