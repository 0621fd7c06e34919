package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/graphmem/graphmem/pkg/retrieval"
)

var statsJSON bool

// newStatsCmd builds the "stats" subcommand, which reports the live
// engine's index sizes and cache health.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Report index sizes and cache health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, store, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats := engine.Stats()
			if statsJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
			}
			printStatsFormatted(cmd, stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&statsJSON, "json", false, "print stats as JSON")
	return cmd
}

func printStatsFormatted(cmd *cobra.Command, s retrieval.Stats) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entities:              %d\n", s.EntityCount)
	fmt.Fprintf(out, "relations:             %d\n", s.RelationCount)
	fmt.Fprintf(out, "indexed terms:         %d\n", s.IndexedTerms)
	fmt.Fprintf(out, "vectors:               %d\n", s.VectorCount)
	fmt.Fprintf(out, "query plan cache:      %d\n", s.PlanCacheSize)
	fmt.Fprintf(out, "incremental pending:   %d\n", s.IncrementalPending)
	fmt.Fprintf(out, "incremental degraded:  %t\n", s.IncrementalDegraded)
	fmt.Fprintf(out, "embedding cache hit rate: %.2f%%\n", s.EmbeddingCacheHitRate*100)
}
