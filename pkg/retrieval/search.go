package retrieval

import (
	"context"
	"sort"
	"strings"

	"github.com/graphmem/graphmem/internal/embedder"
	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/fuzzy"
	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/graphmem/graphmem/internal/symbolic"
	"github.com/graphmem/graphmem/internal/tokenize"
)

// filteredEntities applies a symbolic filter to the current graph
// snapshot, returning the set of entity names that pass. A nil/empty
// filter passes every entity.
func (e *Engine) filteredEntities(g *graphmodel.KnowledgeGraph, filters *Filters) map[string]bool {
	if !filters.hasAny() {
		return nil // nil means "no filtering" to callers below
	}
	allowed := make(map[string]bool)
	for _, r := range symbolic.Search(g, filters.toSymbolic()) {
		allowed[r.Name] = true
	}
	return allowed
}

func passesFilter(allowed map[string]bool, name string) bool {
	return allowed == nil || allowed[name]
}

// SearchBasic is the substring-match fallback: every entity whose
// searchable text contains query (case-insensitively), sorted by name
// (spec §6).
func (e *Engine) SearchBasic(query string, filters *Filters) ([]*graphmodel.Entity, error) {
	g := e.snapshot()
	allowed := e.filteredEntities(g, filters)

	q := strings.ToLower(strings.TrimSpace(query))
	var out []*graphmodel.Entity
	names := sortedEntityNames(g)
	for _, name := range names {
		if !passesFilter(allowed, name) {
			continue
		}
		ent := g.Entities[name]
		if q == "" || strings.Contains(strings.ToLower(ent.SearchableText()), q) {
			out = append(out, ent)
		}
	}
	return out, nil
}

func sortedEntityNames(g *graphmodel.KnowledgeGraph) []string {
	names := make([]string, 0, len(g.Entities))
	for name := range g.Entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) queryTerms(query string) []string {
	return tokenize.Tokenize(query, tokenize.DefaultStopWords)
}

func applyLimitFilter(docs []SearchResult, allowed map[string]bool, limit int) []SearchResult {
	var out []SearchResult
	for _, d := range docs {
		if !passesFilter(allowed, d.Name) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// SearchRanked runs the TF-IDF scorer over query and returns the top
// limit results passing filters (spec §4.3, §6). limit <= 0 means
// unbounded.
func (e *Engine) SearchRanked(query string, filters *Filters, limit int) ([]SearchResult, error) {
	g := e.snapshot()
	allowed := e.filteredEntities(g, filters)
	terms := e.queryTerms(query)
	scored := e.tfidf.Score(terms)

	out := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		out = append(out, SearchResult{Name: s.Name, Score: s.Score})
	}
	return applyLimitFilter(out, allowed, limit), nil
}

// SearchBM25 runs the BM25 scorer over query (spec §4.4, §6).
func (e *Engine) SearchBM25(query string, filters *Filters, limit int) ([]SearchResult, error) {
	g := e.snapshot()
	allowed := e.filteredEntities(g, filters)
	terms := e.queryTerms(query)
	scored := e.bm25.Score(terms)

	out := make([]SearchResult, 0, len(scored))
	for _, s := range scored {
		out = append(out, SearchResult{Name: s.Name, Score: s.Score})
	}
	return applyLimitFilter(out, allowed, limit), nil
}

// SearchFuzzy runs the edit-distance layer over query (spec §4.10, §6).
// threshold <= 0 uses fuzzy.DefaultThreshold.
func (e *Engine) SearchFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	g := e.snapshot()
	results := fuzzy.Search(ctx, g, query, threshold)

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{Name: r.Name, Score: r.Score})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SearchSemantic embeds query and runs a brute-force cosine search over
// the vector store (spec §4.5, §6).
func (e *Engine) SearchSemantic(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	vecs, err := e.embedder.Embed(ctx, []string{embedder.QueryPrefix + query})
	if err != nil {
		return nil, errs.Wrap(errs.KindEmbedderUnavailable, "embed query", err)
	}
	q := embedder.Normalize(vecs[0])

	results, err := e.vectors.Search(q, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{Name: r.Name, Score: r.Score})
	}
	return out, nil
}

// GetSuggestions returns up to max "did you mean" candidates for query,
// strictly excluding exact matches (spec §4.10, §6).
func (e *Engine) GetSuggestions(query string, max int) ([]string, error) {
	if max <= 0 {
		max = 5
	}
	g := e.snapshot()
	results := fuzzy.Suggest(g, query)

	out := make([]string, 0, max)
	for _, r := range results {
		out = append(out, r.Name)
		if len(out) >= max {
			break
		}
	}
	return out, nil
}
