// Package queryplan classifies incoming queries and turns them into a
// concrete execution plan naming which search layers to run (spec
// §4.12). Plans for repeated queries are served from a bounded LRU cache.
package queryplan

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Kind classifies the shape of a query's text.
type Kind string

const (
	KindEmpty           Kind = "empty"
	KindShortKeyword    Kind = "short_keyword"
	KindNaturalLanguage Kind = "natural_language"
	KindBoolean         Kind = "boolean"
)

// shortKeywordMaxWords is the word-count boundary between a short
// keyword query and natural language (spec §4.12).
const shortKeywordMaxWords = 3

var booleanOperators = []string{" and ", " or ", " not ", "&&", "||"}

// Classify inspects query text (filters are considered separately by the
// caller) and returns its Kind.
func Classify(query string, hasFilters bool) Kind {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return KindEmpty
	}
	lower := " " + strings.ToLower(trimmed) + " "
	for _, op := range booleanOperators {
		if strings.Contains(lower, op) {
			return KindBoolean
		}
	}
	if len(strings.Fields(trimmed)) <= shortKeywordMaxWords {
		return KindShortKeyword
	}
	return KindNaturalLanguage
}

// Plan names which layers to execute and with what per-layer limit.
type Plan struct {
	Kind           Kind
	Layers         []string
	TopK           int
	UseFilters     bool
	EstimatedCost  float64
}

// Layer cost weights used by the cost estimator; semantic embedding is
// the most expensive, symbolic filtering the cheapest (spec §4.13).
var layerCost = map[string]float64{
	"lexical":  1.0,
	"bm25":     1.0,
	"semantic": 5.0,
	"symbolic": 0.5,
	"fuzzy":    2.0,
}

// estimateCost sums the configured cost of each planned layer, scaled by
// the requested result count.
func estimateCost(layers []string, topK int) float64 {
	var total float64
	for _, l := range layers {
		total += layerCost[l]
	}
	if topK > 0 {
		total *= 1 + float64(topK)/100.0
	}
	return total
}

// Build constructs a Plan for the given classification. An empty query
// with filters runs the symbolic layer alone; a boolean query adds
// lexical layers only (no semantic, since boolean operators aren't
// meaningful against embeddings); a short keyword query runs lexical,
// bm25, semantic and fuzzy; a natural-language query runs semantic,
// lexical and bm25, without fuzzy. Non-empty queries add the symbolic
// layer when filters are present.
func Build(kind Kind, hasFilters bool, topK int) Plan {
	var layers []string
	switch kind {
	case KindEmpty:
		if hasFilters {
			layers = []string{"symbolic"}
		}
	case KindBoolean:
		layers = []string{"lexical", "bm25"}
		if hasFilters {
			layers = append(layers, "symbolic")
		}
	case KindShortKeyword:
		layers = []string{"lexical", "bm25", "semantic", "fuzzy"}
		if hasFilters {
			layers = append(layers, "symbolic")
		}
	case KindNaturalLanguage:
		layers = []string{"semantic", "lexical", "bm25"}
		if hasFilters {
			layers = append(layers, "symbolic")
		}
	}
	sort.Strings(layers)
	if topK <= 0 {
		topK = 10
	}
	return Plan{Kind: kind, Layers: layers, TopK: topK, UseFilters: hasFilters, EstimatedCost: estimateCost(layers, topK)}
}

// Key canonicalizes a query + filter signature + topK for cache lookups.
// Filter tags are expected pre-sorted by the caller so equivalent filter
// sets (same tags, any input order) hash identically.
func Key(normalizedQuery string, filterSignature string, topK int) string {
	return strings.ToLower(strings.TrimSpace(normalizedQuery)) + "|" + filterSignature + "|" + itoa(topK)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Cache is a bounded LRU of query-signature -> Plan.
type Cache struct {
	lru *lru.Cache[string, Plan]
}

// DefaultCacheSize is the spec §6 default plan-cache capacity.
const DefaultCacheSize = 500

// NewCache returns an LRU-backed plan cache of the given capacity.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, Plan](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns a cached plan for key, if present.
func (c *Cache) Get(key string) (Plan, bool) {
	return c.lru.Get(key)
}

// Put stores plan under key.
func (c *Cache) Put(key string, plan Plan) {
	c.lru.Add(key, plan)
}

// Invalidate drops every cached plan. Called by the incremental indexer
// when a batch changes a large enough fraction of the graph that old
// plans' cost estimates may no longer hold (spec §4.15).
func (c *Cache) Invalidate() {
	c.lru.Purge()
}

// Len reports the number of cached plans.
func (c *Cache) Len() int {
	return c.lru.Len()
}
