package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphmem/graphmem/pkg/retrieval"
)

var (
	benchKind   string
	benchRounds int
)

// defaultBenchQueries covers each query shape queryplan.Classify
// distinguishes: empty, short keyword, natural language, and boolean.
var defaultBenchQueries = []string{
	"",
	"graph",
	"who builds the hybrid retrieval engine",
	"graph AND engine",
}

// newBenchCmd builds the "bench" subcommand, which runs a fixed query
// set repeatedly against the configured store and reports latency.
func newBenchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure search latency over a fixed query set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, store, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			return runBench(ctx, cmd, engine)
		},
	}

	cmd.Flags().StringVar(&benchKind, "kind", "hybrid", "search kind to benchmark: ranked, bm25, boolean, fuzzy, semantic, hybrid")
	cmd.Flags().IntVar(&benchRounds, "rounds", 20, "number of times to repeat the query set")
	return cmd
}

func runBench(ctx context.Context, cmd *cobra.Command, engine *retrieval.Engine) error {
	out := cmd.OutOrStdout()
	if benchRounds <= 0 {
		benchRounds = 1
	}

	var samples []time.Duration
	for round := 0; round < benchRounds; round++ {
		for _, q := range defaultBenchQueries {
			start := time.Now()
			if _, err := runBenchQuery(ctx, engine, q); err != nil {
				return fmt.Errorf("bench query %q: %w", q, err)
			}
			samples = append(samples, time.Since(start))
		}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	total := time.Duration(0)
	for _, d := range samples {
		total += d
	}

	fmt.Fprintf(out, "kind=%s rounds=%d queries=%d samples=%d\n", benchKind, benchRounds, len(defaultBenchQueries), len(samples))
	fmt.Fprintf(out, "min=%s avg=%s p50=%s p95=%s max=%s\n",
		samples[0], total/time.Duration(len(samples)), percentile(samples, 0.50), percentile(samples, 0.95), samples[len(samples)-1])
	return nil
}

func runBenchQuery(ctx context.Context, engine *retrieval.Engine, query string) (int, error) {
	switch benchKind {
	case "ranked":
		r, err := engine.SearchRanked(query, nil, 10)
		return len(r), err
	case "bm25":
		r, err := engine.SearchBM25(query, nil, 10)
		return len(r), err
	case "fuzzy":
		r, err := engine.SearchFuzzy(ctx, query, 0, 10)
		return len(r), err
	case "semantic":
		r, err := engine.SearchSemantic(ctx, query, 10)
		return len(r), err
	case "boolean":
		if query == "" {
			return 0, nil
		}
		r, err := engine.SearchBoolean(query, nil, 10)
		return len(r), err
	default:
		result, err := engine.SearchHybrid(ctx, query, nil, retrieval.HybridOptions{Limit: 10})
		if err != nil {
			return 0, err
		}
		return len(result.Results), nil
	}
}

// percentile returns the p-th percentile (0 < p <= 1) of a sorted duration slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
