package execpipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/hybrid"
)

func layer(results []hybrid.LayerResult, delay time.Duration, err error) LayerFunc {
	return func(ctx context.Context) ([]hybrid.LayerResult, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return results, err
	}
}

func TestRunCollectsAllLayerResults(t *testing.T) {
	layers := map[string]LayerFunc{
		"lexical":  layer([]hybrid.LayerResult{{Name: "a", Score: 1}}, 0, nil),
		"semantic": layer([]hybrid.LayerResult{{Name: "b", Score: 2}}, 0, nil),
	}
	outcome, err := Run(context.Background(), layers, time.Second)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2)
}

func TestRunTreatsPartialFailureAsSuccess(t *testing.T) {
	layers := map[string]LayerFunc{
		"lexical":  layer([]hybrid.LayerResult{{Name: "a", Score: 1}}, 0, nil),
		"semantic": layer(nil, 0, errors.New("embedder down")),
	}
	outcome, err := Run(context.Background(), layers, time.Second)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 1)
	assert.Error(t, outcome.LayerTiming["semantic"].Err)
}

func TestRunAllLayersFailedReturnsRetrievalUnavailable(t *testing.T) {
	layers := map[string]LayerFunc{
		"lexical": layer(nil, 0, errors.New("corrupt index")),
	}
	_, err := Run(context.Background(), layers, time.Second)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRetrievalUnavailable))
}

func TestRunLayerTimeoutIsRecorded(t *testing.T) {
	layers := map[string]LayerFunc{
		"slow": layer([]hybrid.LayerResult{{Name: "a", Score: 1}}, 50*time.Millisecond, nil),
	}
	outcome, err := Run(context.Background(), layers, 5*time.Millisecond)
	require.Error(t, err) // the only layer times out -> RetrievalUnavailable
	assert.True(t, outcome.LayerTiming["slow"].TimedOut)
}

func TestRunAdaptiveStopsEarlyWhenAdequate(t *testing.T) {
	layers := map[string]LayerFunc{
		"fast": layer([]hybrid.LayerResult{{Name: "a", Score: 1}}, 0, nil),
		"slow": layer([]hybrid.LayerResult{{Name: "b", Score: 1}}, 200*time.Millisecond, nil),
	}
	adequate := func(partial map[string][]hybrid.LayerResult) bool {
		return len(partial) >= 1
	}
	start := time.Now()
	outcome, err := RunAdaptive(context.Background(), layers, time.Second, false, adequate)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Less(t, elapsed, 150*time.Millisecond)
	assert.Contains(t, outcome.Results, "fast")
}

func TestRunAdaptiveNeverTerminatesEarlyWithSymbolicFilterPending(t *testing.T) {
	layers := map[string]LayerFunc{
		"fast": layer([]hybrid.LayerResult{{Name: "a", Score: 1}}, 0, nil),
		"slow": layer([]hybrid.LayerResult{{Name: "b", Score: 1}}, 30*time.Millisecond, nil),
	}
	adequate := func(partial map[string][]hybrid.LayerResult) bool { return true }

	outcome, err := RunAdaptive(context.Background(), layers, time.Second, true, adequate)
	require.NoError(t, err)
	assert.Len(t, outcome.Results, 2) // both ran to completion despite "adequate" always true
}
