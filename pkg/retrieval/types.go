// Package retrieval is the public API surface of the hybrid retrieval
// engine (spec §6): an Engine wraps a graphmodel.Store and an
// embedder.Embedder and exposes SearchBasic, SearchRanked, SearchBM25,
// SearchBoolean, SearchFuzzy, SearchSemantic, SearchHybrid, and
// GetSuggestions over the knowledge graph they hold.
package retrieval

import (
	"time"

	"github.com/graphmem/graphmem/internal/symbolic"
)

// Filters is the public symbolic-filter shape every search entry point
// accepts (spec §3 SymbolicFilters). A nil Filters means "no filtering".
type Filters struct {
	Tags             []string
	EntityTypes      []string
	DateFrom         time.Time
	DateTo           time.Time
	MinImportance    *float64
	MaxImportance    *float64
	ParentID         string
	HasObservations  bool
}

// toSymbolic converts the public filter shape into the internal
// predicate filter the symbolic layer evaluates. A nil receiver yields
// the zero-value Filter (no predicates).
func (f *Filters) toSymbolic() symbolic.Filter {
	if f == nil {
		return symbolic.Filter{}
	}
	return symbolic.Filter{
		Tags:                f.Tags,
		EntityTypes:         f.EntityTypes,
		DateFrom:            f.DateFrom,
		DateTo:              f.DateTo,
		MinImportance:       f.MinImportance,
		MaxImportance:       f.MaxImportance,
		ParentID:            f.ParentID,
		RequireObservations: f.HasObservations,
	}
}

// hasAny reports whether any predicate is actually set.
func (f *Filters) hasAny() bool {
	if f == nil {
		return false
	}
	return len(f.Tags) > 0 || len(f.EntityTypes) > 0 || !f.DateFrom.IsZero() || !f.DateTo.IsZero() ||
		f.MinImportance != nil || f.MaxImportance != nil || f.ParentID != "" || f.HasObservations
}

// SearchResult is a single ranked hit from a lexical, BM25, fuzzy, or
// semantic search.
type SearchResult struct {
	Name  string
	Score float64
}

// HybridOptions configures a single SearchHybrid call.
type HybridOptions struct {
	Limit           int
	Weights         map[string]float64
	DisableRefine   bool
	FuzzyThreshold  float64
}

// HybridSearchResult is the full output of SearchHybrid: the fused
// ranking plus the diagnostics spec §6 promises for explainability.
type HybridSearchResult struct {
	Results      []HybridHit
	Plan         PlanSummary
	Iterations   int
	Relaxed      []string
	Warnings     []string
}

// HybridHit is one fused result with its per-layer provenance.
type HybridHit struct {
	Name          string
	Score         float64
	MatchedLayers []string
	RawScores     map[string]float64
}

// PlanSummary is the caller-visible subset of the internal query plan.
type PlanSummary struct {
	Kind   string
	Layers []string
	TopK   int
}
