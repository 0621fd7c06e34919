// Package cmd provides the graphmemd CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphmem/graphmem/internal/config"
	"github.com/graphmem/graphmem/internal/embedder"
	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/graphmem/graphmem/internal/graphstoresql"
	"github.com/graphmem/graphmem/pkg/retrieval"
)

var (
	dataPath string
	logLevel string
	seedDemo bool
)

// NewRootCmd builds the graphmemd command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "graphmemd",
		Short:        "Exercise the hybrid retrieval engine from the command line",
		Long:         `graphmemd drives the retrieval engine's search modes and index state against a SQLite-backed graph store, for manual testing and benchmarking.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if logLevel == "debug" {
				level = slog.LevelDebug
			} else if logLevel == "warn" {
				level = slog.LevelWarn
			} else if logLevel == "error" {
				level = slog.LevelError
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dataPath, "data", "./graphmem.db", "path to the SQLite graph store")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&seedDemo, "seed", true, "seed a small demo graph when the store is empty")

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// openEngine opens the configured graph store, constructs a retrieval
// engine over it, and seeds a small demo graph if the store is empty
// and --seed is set. Callers must Close the returned store.
func openEngine(ctx context.Context) (*retrieval.Engine, *graphstoresql.Store, error) {
	store, err := graphstoresql.Open(dataPath, slog.Default())
	if err != nil {
		return nil, nil, fmt.Errorf("open graph store at %s: %w", dataPath, err)
	}

	if seedDemo {
		if err := seedIfEmpty(ctx, store); err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	cfg := config.NewConfig()
	emb := embedder.NewMock(64)
	engine, err := retrieval.NewEngine(ctx, store, emb, cfg, slog.Default())
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("construct retrieval engine: %w", err)
	}
	return engine, store, nil
}

// seedIfEmpty populates the store with a small fixture graph the first
// time graphmemd touches an empty database, so query/stats/bench have
// something to act on without a separate import step.
func seedIfEmpty(ctx context.Context, store *graphstoresql.Store) error {
	g, err := store.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	if len(g.Entities) > 0 {
		return nil
	}

	working, err := store.GetGraphForMutation(ctx)
	if err != nil {
		return fmt.Errorf("get graph for mutation: %w", err)
	}
	for _, seed := range demoFixture() {
		working.Entities[seed.Name] = seed
	}
	if err := working.AddRelation(&graphmodel.Relation{From: "Alice", To: "Carol", RelationType: "reviews"}); err != nil {
		return fmt.Errorf("seed relation: %w", err)
	}
	if err := working.AddRelation(&graphmodel.Relation{From: "Bob", To: "Widget", RelationType: "maintains"}); err != nil {
		return fmt.Errorf("seed relation: %w", err)
	}
	if err := store.SaveGraph(ctx, working); err != nil {
		return fmt.Errorf("save seeded graph: %w", err)
	}
	return nil
}

func demoFixture() []*graphmodel.Entity {
	return []*graphmodel.Entity{
		{
			Name:         "Alice",
			EntityType:   "person",
			Observations: []string{"Alice builds the hybrid retrieval engine", "Alice reviews pull requests for the graph store"},
			Tags:         []string{"engineering"},
		},
		{
			Name:         "Bob",
			EntityType:   "person",
			Observations: []string{"Bob maintains the Widget product line", "Bob writes onboarding documentation"},
			Tags:         []string{"product"},
		},
		{
			Name:         "Carol",
			EntityType:   "person",
			Observations: []string{"Carol researches approximate nearest neighbor search", "Carol plays guitar on weekends"},
			Tags:         []string{"research"},
		},
		{
			Name:         "Widget",
			EntityType:   "product",
			Observations: []string{"Widget is the flagship product built on the graph engine"},
			Tags:         []string{"product"},
		},
	}
}
