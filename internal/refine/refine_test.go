package refine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/internal/hybrid"
)

func TestRunReturnsImmediatelyWhenFirstPassAdequate(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, s State) ([]hybrid.Combined, error) {
		calls++
		return []hybrid.Combined{{Name: "a"}}, nil
	}
	adequate := func(r []hybrid.Combined) bool { return len(r) > 0 }

	outcome, err := Run(context.Background(), State{TopK: 10}, search, adequate, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Iterations)
	assert.Equal(t, 1, calls)
}

func TestRunAppliesStepsUntilAdequate(t *testing.T) {
	attempt := 0
	search := func(ctx context.Context, s State) ([]hybrid.Combined, error) {
		attempt++
		if attempt < 3 {
			return nil, nil
		}
		return []hybrid.Combined{{Name: "a"}}, nil
	}
	adequate := func(r []hybrid.Combined) bool { return len(r) > 0 }
	steps := []Step{WidenTopK(100), AddFuzzy()}

	outcome, err := Run(context.Background(), State{TopK: 5}, search, adequate, steps, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Iterations)
	assert.Len(t, outcome.Relaxed, 2)
}

func TestRunStopsAtMaxIterationsWithoutAdequateResults(t *testing.T) {
	search := func(ctx context.Context, s State) ([]hybrid.Combined, error) { return nil, nil }
	adequate := func(r []hybrid.Combined) bool { return false }
	steps := []Step{WidenTopK(100), AddFuzzy(), DropFilters()}

	outcome, err := Run(context.Background(), State{TopK: 5}, search, adequate, steps, 3)
	require.NoError(t, err)
	assert.Empty(t, outcome.Results)
	assert.LessOrEqual(t, outcome.Iterations, 3)
}

func TestRunStopsOnCycleDetection(t *testing.T) {
	calls := 0
	search := func(ctx context.Context, s State) ([]hybrid.Combined, error) {
		calls++
		return nil, nil
	}
	adequate := func(r []hybrid.Combined) bool { return false }
	noop := func(s State) State { return s } // always returns the same state -> immediate cycle
	steps := []Step{noop, noop}

	outcome, err := Run(context.Background(), State{TopK: 5, Layers: []string{"lexical"}}, search, adequate, steps, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, calls) // initial search only; the first relaxation repeats the initial state
	assert.Empty(t, outcome.Relaxed)
}

func TestWidenTopKCapsAtMax(t *testing.T) {
	s := WidenTopK(20)(State{TopK: 15})
	assert.Equal(t, 20, s.TopK)
}

func TestDropFiltersRemovesSymbolicLayer(t *testing.T) {
	s := DropFilters()(State{Layers: []string{"lexical", "symbolic"}, FiltersActive: true})
	assert.Equal(t, []string{"lexical"}, s.Layers)
	assert.False(t, s.FiltersActive)
}

func TestAddFuzzyIsIdempotent(t *testing.T) {
	s := State{Layers: []string{"fuzzy"}}
	s2 := AddFuzzy()(s)
	assert.Equal(t, []string{"fuzzy"}, s2.Layers)
}
