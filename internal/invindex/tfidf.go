package invindex

import (
	"math"
	"sort"

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/graphmem/graphmem/internal/tokenize"
)

// TFIDFIndex builds and maintains the document-vector view of the shared
// inverted index plus a term -> IDF map (spec §3, §4.3).
type TFIDFIndex struct {
	inverted  *InvertedIndex
	idf       map[string]float64
	stopWords map[string]struct{}
}

// NewTFIDFIndex wraps an inverted index. A nil index creates a private one.
func NewTFIDFIndex(inverted *InvertedIndex, stopWords map[string]struct{}) *TFIDFIndex {
	if inverted == nil {
		inverted = NewInvertedIndex()
	}
	if stopWords == nil {
		stopWords = tokenize.DefaultStopWords
	}
	return &TFIDFIndex{inverted: inverted, idf: make(map[string]float64), stopWords: stopWords}
}

// Inverted exposes the shared posting-list index, e.g. for a BM25Index
// built over the same documents.
func (t *TFIDFIndex) Inverted() *InvertedIndex { return t.inverted }

func tokenizeEntity(e *graphmodel.Entity, stopWords map[string]struct{}) []string {
	return tokenize.Tokenize(e.SearchableText(), stopWords)
}

// BuildIndex performs a full rebuild from the graph: every entity is
// tokenized and inserted, then IDF is computed for every distinct term as
// log(N / df(t)).
func (t *TFIDFIndex) BuildIndex(g *graphmodel.KnowledgeGraph) {
	t.inverted = NewInvertedIndex()
	names := make([]string, 0, len(g.Entities))
	for name := range g.Entities {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic insertion order
	for _, name := range names {
		e := g.Entities[name]
		t.inverted.Insert(name, tokenizeEntity(e, t.stopWords))
	}
	t.recomputeAllIDF()
}

func (t *TFIDFIndex) recomputeAllIDF() {
	t.idf = make(map[string]float64, len(t.inverted.postings))
	n := t.inverted.Size()
	for term := range t.inverted.postings {
		t.idf[term] = idfFor(n, t.inverted.DocFrequency(term))
	}
}

// idfFor computes log(N/df); df=0 is defined as IDF 0 (spec §9 open
// question resolution) rather than undefined/infinite.
func idfFor(n, df int) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	return math.Log(float64(n) / float64(df))
}

// UpdateIndex removes the prior vectors for changedNames and recomputes
// them from the current graph. When the document count is unchanged it
// re-derives IDF only for affected terms; when the count changes, every
// term's IDF depends on the new N, so all of them are recomputed. Either
// way the result equals, within float epsilon, a full rebuild (spec
// invariant 3).
func (t *TFIDFIndex) UpdateIndex(g *graphmodel.KnowledgeGraph, changedNames []string) {
	prevN := t.inverted.Size()
	affected := make(map[string]struct{})

	for _, name := range changedNames {
		for term := range t.inverted.TermsFor(name) {
			affected[term] = struct{}{}
		}
		t.inverted.Remove(name)

		if e, ok := g.Entities[name]; ok {
			terms := tokenizeEntity(e, t.stopWords)
			t.inverted.Insert(name, terms)
			for _, term := range terms {
				affected[term] = struct{}{}
			}
		}
	}

	n := t.inverted.Size()
	if n != prevN {
		t.recomputeAllIDF()
		return
	}
	for term := range affected {
		df := t.inverted.DocFrequency(term)
		if df == 0 {
			delete(t.idf, term) // spec §9: remove the term entirely, not IDF=0 tombstone
			continue
		}
		t.idf[term] = idfFor(n, df)
	}
}

// IDF returns the current IDF value for term, or 0 if the term is absent.
func (t *TFIDFIndex) IDF(term string) float64 {
	return t.idf[term]
}

// ScoredDoc is a single TF-IDF or BM25 result before caller-side filtering.
type ScoredDoc struct {
	Name  string
	Score float64
}

// Score ranks every document against the tokenized query terms using
// score(d) = sum_t tf(t,d) * idf(t), tf(t,d) = count(t,d)/length(d).
// Zero-score entities are excluded; ties break by name ascending.
func (t *TFIDFIndex) Score(queryTerms []string) []ScoredDoc {
	accum := make(map[string]float64)
	for _, term := range queryTerms {
		idf := t.idf[term]
		if idf == 0 {
			continue
		}
		for _, p := range t.inverted.Postings(term) {
			length := t.inverted.DocLength(p.DocName)
			if length == 0 {
				continue
			}
			tf := float64(p.TermFrequency) / float64(length)
			accum[p.DocName] += tf * idf
		}
	}

	out := make([]ScoredDoc, 0, len(accum))
	for name, score := range accum {
		if score > 0 {
			out = append(out, ScoredDoc{Name: name, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ErrIndexUnavailable is returned by LoadIndex when no snapshot exists; callers
// may treat this as "rebuild instead" since the index is always
// reconstructible from the graph (spec §4.3).
var ErrIndexUnavailable = errs.New(errs.KindStorageUnavailable, "tfidf index snapshot unavailable")
