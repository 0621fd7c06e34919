// Package fuzzy implements the edit-distance search layer (spec §4.10):
// approximate name/observation matching for typo tolerance, plus a
// "did you mean" suggestion mode.
package fuzzy

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/graphmem/graphmem/internal/tokenize"
)

// DefaultThreshold is the minimum similarity score for a fuzzy match to
// be returned from Search (spec §6).
const DefaultThreshold = 0.6

// offloadThreshold is the candidate-count above which Search fans work
// out across a worker pool instead of scoring sequentially.
const offloadThreshold = 500

// maxWorkers bounds fuzzy-search parallelism regardless of candidate count.
const maxWorkers = 8

// Result is a single fuzzy match.
type Result struct {
	Name  string
	Score float64
}

func bestSimilarity(query string, e *graphmodel.Entity) float64 {
	best := tokenize.Similarity(query, e.Name)
	for _, obs := range e.Observations {
		if s := tokenize.Similarity(query, obs); s > best {
			best = s
		}
	}
	return best
}

// Search scores every entity's name and observations against query and
// returns matches at or above threshold, sorted by score descending then
// name ascending. Candidate sets above offloadThreshold are scored
// concurrently via a bounded worker pool.
func Search(ctx context.Context, g *graphmodel.KnowledgeGraph, query string, threshold float64) []Result {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	names := make([]string, 0, len(g.Entities))
	for name := range g.Entities {
		names = append(names, name)
	}

	if len(names) <= offloadThreshold {
		return scoreSequential(g, names, query, threshold)
	}
	return scoreParallel(ctx, g, names, query, threshold)
}

func scoreSequential(g *graphmodel.KnowledgeGraph, names []string, query string, threshold float64) []Result {
	out := make([]Result, 0, len(names))
	for _, name := range names {
		if s := bestSimilarity(query, g.Entities[name]); s >= threshold {
			out = append(out, Result{Name: name, Score: s})
		}
	}
	return sortResults(out)
}

func scoreParallel(ctx context.Context, g *graphmodel.KnowledgeGraph, names []string, query string, threshold float64) []Result {
	sem := semaphore.NewWeighted(maxWorkers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	out := make([]Result, 0, len(names))

	for _, name := range names {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled; return whatever was scored so far
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer sem.Release(1)
			s := bestSimilarity(query, g.Entities[name])
			if s >= threshold {
				mu.Lock()
				out = append(out, Result{Name: name, Score: s})
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	return sortResults(out)
}

func sortResults(out []Result) []Result {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Suggest implements "did you mean": near-matches strictly below an
// exact match but above a looser floor, excluding exact matches
// themselves (spec §4.10 boundary: 0.5 < similarity < 1.0).
func Suggest(g *graphmodel.KnowledgeGraph, query string) []Result {
	const floor = 0.5
	out := make([]Result, 0)
	for name, e := range g.Entities {
		s := bestSimilarity(query, e)
		if s > floor && s < 1.0 {
			out = append(out, Result{Name: name, Score: s})
		}
	}
	return sortResults(out)
}
