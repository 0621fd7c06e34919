package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/graphmem/graphmem/pkg/retrieval"
)

var (
	queryKind  string
	queryLimit int
	queryTags  []string
	queryTypes []string
	queryJSON  bool
)

// newQueryCmd builds the "query" subcommand, which runs one search mode
// against the configured graph store and prints the ranked hits.
func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run a search against the graph store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			engine, store, err := openEngine(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var filters *retrieval.Filters
			if len(queryTags) > 0 || len(queryTypes) > 0 {
				filters = &retrieval.Filters{Tags: queryTags, EntityTypes: queryTypes}
			}

			return runQuery(cmd, engine, args[0], filters)
		},
	}

	cmd.Flags().StringVar(&queryKind, "kind", "hybrid", "search kind: basic, ranked, bm25, boolean, fuzzy, semantic, hybrid, suggest")
	cmd.Flags().IntVar(&queryLimit, "limit", 10, "maximum number of results")
	cmd.Flags().StringSliceVar(&queryTags, "tag", nil, "restrict to entities carrying this tag (repeatable)")
	cmd.Flags().StringSliceVar(&queryTypes, "type", nil, "restrict to entities of this type (repeatable)")
	cmd.Flags().BoolVar(&queryJSON, "json", false, "print results as JSON")

	return cmd
}

func runQuery(cmd *cobra.Command, engine *retrieval.Engine, query string, filters *retrieval.Filters) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch strings.ToLower(queryKind) {
	case "basic":
		results, err := engine.SearchBasic(query, filters)
		if err != nil {
			return err
		}
		if queryJSON {
			return json.NewEncoder(out).Encode(results)
		}
		for _, ent := range results {
			fmt.Fprintf(out, "%s\t%s\n", ent.Name, ent.EntityType)
		}
		return nil
	case "ranked":
		results, err := engine.SearchRanked(query, filters, queryLimit)
		if err != nil {
			return err
		}
		return printResults(out, results)
	case "bm25":
		results, err := engine.SearchBM25(query, filters, queryLimit)
		if err != nil {
			return err
		}
		return printResults(out, results)
	case "boolean":
		results, err := engine.SearchBoolean(query, filters, queryLimit)
		if err != nil {
			return err
		}
		return printResults(out, results)
	case "fuzzy":
		results, err := engine.SearchFuzzy(ctx, query, 0, queryLimit)
		if err != nil {
			return err
		}
		return printResults(out, results)
	case "semantic":
		results, err := engine.SearchSemantic(ctx, query, queryLimit)
		if err != nil {
			return err
		}
		return printResults(out, results)
	case "suggest":
		suggestions, err := engine.GetSuggestions(query, queryLimit)
		if err != nil {
			return err
		}
		if queryJSON {
			return json.NewEncoder(out).Encode(suggestions)
		}
		for _, s := range suggestions {
			fmt.Fprintln(out, s)
		}
		return nil
	case "hybrid":
		result, err := engine.SearchHybrid(ctx, query, filters, retrieval.HybridOptions{Limit: queryLimit})
		if err != nil {
			return err
		}
		if queryJSON {
			return json.NewEncoder(out).Encode(result)
		}
		fmt.Fprintf(out, "plan: kind=%s layers=%v top_k=%d iterations=%d relaxed=%v\n",
			result.Plan.Kind, result.Plan.Layers, result.Plan.TopK, result.Iterations, result.Relaxed)
		for _, w := range result.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, hit := range result.Results {
			fmt.Fprintf(out, "%.4f\t%s\t%v\n", hit.Score, hit.Name, hit.MatchedLayers)
		}
		return nil
	default:
		return fmt.Errorf("unknown query kind %q", queryKind)
	}
}

func printResults(out io.Writer, results []retrieval.SearchResult) error {
	if queryJSON {
		return json.NewEncoder(out).Encode(results)
	}
	for _, r := range results {
		fmt.Fprintf(out, "%.4f\t%s\n", r.Score, r.Name)
	}
	return nil
}
