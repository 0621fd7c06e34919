// Package symbolic implements the metadata predicate-filter search layer
// (spec §4.9): entities are scored by how many of a query's predicates
// they satisfy, with all predicates AND-combined.
package symbolic

import (
	"sort"
	"strings"
	"time"

	"github.com/graphmem/graphmem/internal/graphmodel"
)

// defaultImportance is substituted when an entity has no explicit
// importance (spec §4.9).
const defaultImportance = 5.0

// Filter is a symbolic query: every non-nil/non-empty field is a
// predicate that a matching entity must satisfy.
type Filter struct {
	Tags             []string
	EntityTypes      []string
	DateFrom         time.Time
	DateTo           time.Time
	MinImportance       *float64
	MaxImportance       *float64
	ParentID            string
	RequireObservations bool
}

// Result is a single symbolic match with its predicate coverage.
type Result struct {
	Name    string
	Matched int
	Total   int
}

// Score returns Matched/Total, or 1.0 when there are no predicates at all.
func (r Result) Score() float64 {
	if r.Total == 0 {
		return 1.0
	}
	return float64(r.Matched) / float64(r.Total)
}

func containsFold(list []string, want string) bool {
	for _, item := range list {
		if strings.EqualFold(item, want) {
			return true
		}
	}
	return false
}

func hasAnyTag(e *graphmodel.Entity, tags []string) bool {
	for _, tag := range tags {
		if e.HasTag(tag) {
			return true
		}
	}
	return false
}

func importanceOf(e *graphmodel.Entity) float64 {
	if e.Importance != nil {
		return *e.Importance
	}
	return defaultImportance
}

// evaluate returns the count of active predicates and, for an entity,
// how many of them it satisfies.
func (f Filter) evaluate(e *graphmodel.Entity) (matched, total int) {
	if len(f.Tags) > 0 {
		total++
		if hasAnyTag(e, f.Tags) {
			matched++
		}
	}
	if len(f.EntityTypes) > 0 {
		total++
		if containsFold(f.EntityTypes, e.EntityType) {
			matched++
		}
	}
	if !f.DateFrom.IsZero() || !f.DateTo.IsZero() {
		total++
		ts := e.LastModified
		ok := true
		if !f.DateFrom.IsZero() && ts.Before(f.DateFrom) {
			ok = false
		}
		if !f.DateTo.IsZero() && ts.After(f.DateTo) {
			ok = false
		}
		if ok {
			matched++
		}
	}
	if f.MinImportance != nil {
		total++
		if importanceOf(e) >= *f.MinImportance {
			matched++
		}
	}
	if f.MaxImportance != nil {
		total++
		if importanceOf(e) <= *f.MaxImportance {
			matched++
		}
	}
	if f.ParentID != "" {
		total++
		if e.ParentID == f.ParentID {
			matched++
		}
	}
	if f.RequireObservations {
		total++
		if len(e.Observations) > 0 {
			matched++
		}
	}
	return matched, total
}

// Search evaluates every entity in g against f. An entity is included
// only if it satisfies every active predicate (AND-combination); its
// Result.Score is always 1.0 in that case, since partial matches are
// excluded rather than ranked lower (spec §4.9: filters are a hard gate,
// the matched/total ratio exists for explainability, not for admission).
func Search(g *graphmodel.KnowledgeGraph, f Filter) []Result {
	results := make([]Result, 0, len(g.Entities))
	for name, e := range g.Entities {
		matched, total := f.evaluate(e)
		if matched != total {
			continue
		}
		results = append(results, Result{Name: name, Matched: matched, Total: total})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
