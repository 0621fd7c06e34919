package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/graphmem/graphmem/internal/execpipe"
	"github.com/graphmem/graphmem/internal/fuzzy"
	"github.com/graphmem/graphmem/internal/hybrid"
	"github.com/graphmem/graphmem/internal/invindex"
	"github.com/graphmem/graphmem/internal/queryplan"
	"github.com/graphmem/graphmem/internal/refine"
	"github.com/graphmem/graphmem/internal/symbolic"
)

// minAdequateResults is the floor below which a hybrid search is
// considered "thin" and eligible for refinement (spec §4.14).
const minAdequateResults = 3

// layerFuncs builds the execpipe.LayerFunc set for the layers named in
// state.Layers, closed over query and filters.
func (e *Engine) layerFuncs(query string, filters *Filters, state refine.State) map[string]execpipe.LayerFunc {
	funcs := make(map[string]execpipe.LayerFunc, len(state.Layers))
	for _, layer := range state.Layers {
		layer := layer
		switch layer {
		case "lexical":
			funcs[layer] = func(ctx context.Context) ([]hybrid.LayerResult, error) {
				return fromScoredDocs(e.tfidf.Score(e.queryTerms(query))), nil
			}
		case "bm25":
			funcs[layer] = func(ctx context.Context) ([]hybrid.LayerResult, error) {
				return fromScoredDocs(e.bm25.Score(e.queryTerms(query))), nil
			}
		case "semantic":
			funcs[layer] = func(ctx context.Context) ([]hybrid.LayerResult, error) {
				results, err := e.SearchSemantic(ctx, query, state.TopK)
				if err != nil {
					return nil, err
				}
				return fromSearchResults(results), nil
			}
		case "fuzzy":
			funcs[layer] = func(ctx context.Context) ([]hybrid.LayerResult, error) {
				g := e.snapshot()
				results := fuzzy.Search(ctx, g, query, fuzzy.DefaultThreshold)
				out := make([]hybrid.LayerResult, 0, len(results))
				for _, r := range results {
					out = append(out, hybrid.LayerResult{Name: r.Name, Score: r.Score})
				}
				return out, nil
			}
		case "symbolic":
			funcs[layer] = func(ctx context.Context) ([]hybrid.LayerResult, error) {
				if !state.FiltersActive || !filters.hasAny() {
					return nil, nil
				}
				g := e.snapshot()
				results := symbolic.Search(g, filters.toSymbolic())
				out := make([]hybrid.LayerResult, 0, len(results))
				for _, r := range results {
					out = append(out, hybrid.LayerResult{Name: r.Name, Score: 1.0})
				}
				return out, nil
			}
		}
	}
	return funcs
}

// fromScoredDocs adapts an invindex score list into the hybrid layer shape.
func fromScoredDocs(scored []invindex.ScoredDoc) []hybrid.LayerResult {
	out := make([]hybrid.LayerResult, 0, len(scored))
	for _, s := range scored {
		out = append(out, hybrid.LayerResult{Name: s.Name, Score: s.Score})
	}
	return out
}

// fromSearchResults adapts the public SearchResult shape into the
// internal hybrid layer shape.
func fromSearchResults(results []SearchResult) []hybrid.LayerResult {
	out := make([]hybrid.LayerResult, 0, len(results))
	for _, r := range results {
		out = append(out, hybrid.LayerResult{Name: r.Name, Score: r.Score})
	}
	return out
}

// SearchHybrid classifies query, builds (or reuses a cached) execution
// plan, runs every planned layer concurrently, fuses their results, and
// — unless disabled — runs the reflection/relaxation loop when the
// first pass comes back thin (spec §4.11-§4.14, §6).
func (e *Engine) SearchHybrid(ctx context.Context, query string, filters *Filters, opts HybridOptions) (*HybridSearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	hasFilters := filters.hasAny()

	planKey := queryplan.Key(query, filterSignature(filters), limit)
	plan, ok := e.planCache.Get(planKey)
	if !ok {
		kind := queryplan.Classify(query, hasFilters)
		plan = queryplan.Build(kind, hasFilters, limit)
		e.planCache.Put(planKey, plan)
	}

	weights := opts.Weights
	if weights == nil {
		weights = hybrid.DefaultWeights()
	}

	initial := refine.State{TopK: plan.TopK, Layers: plan.Layers, FiltersActive: hasFilters}

	search := func(ctx context.Context, state refine.State) ([]hybrid.Combined, error) {
		layers := e.layerFuncs(query, filters, state)
		if len(layers) == 0 {
			return nil, nil
		}
		hasSymbolic := state.FiltersActive && hasFilters
		adequateLayer := func(partial map[string][]hybrid.LayerResult) bool {
			for _, results := range partial {
				if len(results) >= minAdequateResults {
					return true
				}
			}
			return false
		}
		outcome, err := execpipe.RunAdaptive(ctx, layers, execpipe.DefaultLayerTimeout, hasSymbolic, adequateLayer)
		if err != nil {
			return nil, err
		}
		combined := execpipe.Combine(outcome, weights, 0)
		if limit > 0 && len(combined) > limit {
			combined = combined[:limit]
		}
		return combined, nil
	}

	adequate := func(results []hybrid.Combined) bool {
		return len(results) >= minAdequateResults || len(results) >= limit
	}

	var outcome refine.Outcome
	if opts.DisableRefine {
		results, err := search(ctx, initial)
		if err != nil {
			return nil, err
		}
		outcome = refine.Outcome{Results: results, Iterations: 1}
	} else {
		steps := []refine.Step{
			refine.DropFilters(),
			refine.AddFuzzy(),
			refine.WidenTopK(limit * 4),
		}
		var err error
		outcome, err = refine.Run(ctx, initial, search, adequate, steps, refine.DefaultMaxIterations)
		if err != nil {
			return nil, err
		}
	}

	hits := make([]HybridHit, 0, len(outcome.Results))
	for _, c := range outcome.Results {
		hits = append(hits, HybridHit{Name: c.Name, Score: c.Score, MatchedLayers: c.MatchedLayers, RawScores: c.RawScores})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Name < hits[j].Name
	})

	return &HybridSearchResult{
		Results:    hits,
		Plan:       PlanSummary{Kind: string(plan.Kind), Layers: plan.Layers, TopK: plan.TopK},
		Iterations: outcome.Iterations,
		Relaxed:    outcome.Relaxed,
		Warnings:   e.drainWarnings(),
	}, nil
}

// filterSignature canonicalizes a Filters value into a stable cache-key
// component (spec §4.12 "Key canonicalizes a query + filter signature").
func filterSignature(f *Filters) string {
	if !f.hasAny() {
		return ""
	}
	tags := append([]string{}, f.Tags...)
	sort.Strings(tags)
	types := append([]string{}, f.EntityTypes...)
	sort.Strings(types)
	var b strings.Builder
	b.WriteString(strings.Join(tags, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(types, ","))
	b.WriteByte('|')
	b.WriteString(f.ParentID)
	if f.MinImportance != nil {
		b.WriteString("|min")
	}
	if f.MaxImportance != nil {
		b.WriteString("|max")
	}
	if f.HasObservations {
		b.WriteString("|obs")
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		b.WriteString("|dates")
	}
	return b.String()
}
