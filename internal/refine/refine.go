// Package refine implements the reflection loop that re-runs a query
// with progressively relaxed constraints when the first pass comes back
// thin (spec §4.14).
package refine

import (
	"context"

	"github.com/graphmem/graphmem/internal/hybrid"
)

// DefaultMaxIterations bounds the refinement loop (spec §6).
const DefaultMaxIterations = 3

// Step is one relaxation the loop may apply: widen the result limit,
// drop a filter, or add the fuzzy layer. Each Step receives a copy of the
// query state and returns the relaxed copy. Run stops as soon as a Step
// yields a State it has already searched, so a Step that changes nothing
// ends the loop.
type Step func(state State) State

// State captures the mutable parts of a query the refinement loop may adjust.
type State struct {
	TopK          int
	Layers        []string
	FiltersActive bool
}

// key returns a comparable signature for cycle detection.
func (s State) key() string {
	k := ""
	for _, l := range s.Layers {
		k += l + ","
	}
	if s.FiltersActive {
		k += "filtered"
	}
	return k + "|" + itoa(s.TopK)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// AdequateFunc reports whether the current results are good enough to
// stop refining.
type AdequateFunc func(results []hybrid.Combined) bool

// SearchFunc executes one attempt for a given State.
type SearchFunc func(ctx context.Context, state State) ([]hybrid.Combined, error)

// Outcome reports the final results and how many refinement iterations ran.
type Outcome struct {
	Results    []hybrid.Combined
	Iterations int
	Relaxed    []string // human-readable description of each relaxation applied
}

// Run executes an initial search, then applies steps in order until
// results are adequate, maxIterations is reached, or a State repeats
// (cycle detected — the loop stops rather than looping forever).
func Run(ctx context.Context, initial State, search SearchFunc, adequate AdequateFunc, steps []Step, maxIterations int) (Outcome, error) {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	state := initial
	results, err := search(ctx, state)
	if err != nil {
		return Outcome{}, err
	}
	if adequate(results) {
		return Outcome{Results: results, Iterations: 1}, nil
	}

	seen := map[string]bool{state.key(): true}
	relaxed := make([]string, 0, len(steps))
	iterations := 1

	for i := 0; i < maxIterations-1 && i < len(steps); i++ {
		next := steps[i](state)
		if seen[next.key()] {
			break // cycle: relaxing further revisits a prior state, stop
		}
		seen[next.key()] = true
		state = next
		iterations++

		results, err = search(ctx, state)
		if err != nil {
			return Outcome{Results: results, Iterations: i + 2, Relaxed: relaxed}, err
		}
		relaxed = append(relaxed, stepDescription(i))
		if adequate(results) {
			return Outcome{Results: results, Iterations: i + 2, Relaxed: relaxed}, nil
		}
	}

	return Outcome{Results: results, Iterations: iterations, Relaxed: relaxed}, nil
}

func stepDescription(i int) string {
	return "relaxation_" + itoa(i+1)
}

// WidenTopK doubles the result limit, capped at max.
func WidenTopK(max int) Step {
	return func(s State) State {
		s.TopK *= 2
		if s.TopK > max || s.TopK == 0 {
			s.TopK = max
		}
		return s
	}
}

// DropFilters removes the symbolic layer and marks filters inactive.
func DropFilters() Step {
	return func(s State) State {
		s.FiltersActive = false
		layers := make([]string, 0, len(s.Layers))
		for _, l := range s.Layers {
			if l != "symbolic" {
				layers = append(layers, l)
			}
		}
		s.Layers = layers
		return s
	}
}

// AddFuzzy appends the fuzzy layer if it isn't already present.
func AddFuzzy() Step {
	return func(s State) State {
		for _, l := range s.Layers {
			if l == "fuzzy" {
				return s
			}
		}
		s.Layers = append(append([]string{}, s.Layers...), "fuzzy")
		return s
	}
}
