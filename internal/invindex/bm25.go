package invindex

import (
	"math"
	"sort"
)

// BM25Params holds the saturation/length-normalization parameters (spec §4.4).
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25Params returns the spec §6 defaults.
func DefaultBM25Params() BM25Params {
	return BM25Params{K1: 1.2, B: 0.75}
}

// BM25Index scores the shared inverted index with the BM25 formula.
// It carries no separate postings: "BM25 and TF-IDF share the inverted
// index; only scoring differs" (spec §4.4).
type BM25Index struct {
	inverted *InvertedIndex
	params   BM25Params
}

// NewBM25Index wraps an inverted index (typically the same one backing a TFIDFIndex).
func NewBM25Index(inverted *InvertedIndex, params BM25Params) *BM25Index {
	if inverted == nil {
		inverted = NewInvertedIndex()
	}
	if params == (BM25Params{}) {
		params = DefaultBM25Params()
	}
	return &BM25Index{inverted: inverted, params: params}
}

// idf implements the BM25 variant of IDF, which differs from the plain
// TF-IDF formula by the +0.5 smoothing terms (spec §4.4):
//
//	idf(t) = log((N - df(t) + 0.5) / (df(t) + 0.5) + 1)
func (b *BM25Index) idf(term string) float64 {
	n := float64(b.inverted.Size())
	df := float64(b.inverted.DocFrequency(term))
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Score ranks every document containing at least one query term using
// the BM25 formula, summed across query terms. Because of the +1 inside
// idf's log and the +0.5 numerator smoothing, BM25 scores are positive
// even for a single-document corpus (spec boundary case), unlike plain
// TF-IDF.
func (b *BM25Index) Score(queryTerms []string) []ScoredDoc {
	avgDocLen := b.inverted.Stats().AvgDocLength
	accum := make(map[string]float64)

	for _, term := range queryTerms {
		idf := b.idf(term)
		for _, p := range b.inverted.Postings(term) {
			f := float64(p.TermFrequency)
			docLen := float64(b.inverted.DocLength(p.DocName))
			denom := f + b.params.K1*(1-b.params.B+b.params.B*(docLen/nonZero(avgDocLen)))
			score := idf * ((b.params.K1 + 1) * f) / denom
			accum[p.DocName] += score
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

func nonZero(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
