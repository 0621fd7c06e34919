// Package invindex implements the posting-list inverted index shared by
// the TF-IDF and BM25 scorers (spec §4.2, §4.3, §4.4), plus their
// respective scoring and persistence.
package invindex

import (
	"sort"
)

// Posting is a single (doc, term-frequency) entry in a term's posting list.
type Posting struct {
	DocName       string
	TermFrequency int
}

// Stats summarizes the index for diagnostics and cost estimation.
type Stats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// InvertedIndex maps terms to sorted posting lists and tracks per-document
// length. It stores the terms it is given as-is: stopword filtering is
// done by the caller (TFIDFIndex tokenizes with its stopword list before
// calling Insert). It never keeps zero-frequency terms (spec invariant 2):
// a term's posting list is dropped once its last document is removed.
// Each posting list is kept sorted by document name so intersections can
// use a linear merge.
type InvertedIndex struct {
	postings  map[string][]Posting  // term -> sorted-by-DocName posting list
	docTerms  map[string]map[string]int // doc -> term -> count, for removal/update
	docLength map[string]int
}

// NewInvertedIndex returns an empty index.
func NewInvertedIndex() *InvertedIndex {
	return &InvertedIndex{
		postings:  make(map[string][]Posting),
		docTerms:  make(map[string]map[string]int),
		docLength: make(map[string]int),
	}
}

// Insert indexes doc under the given already-tokenized, already-stopword-
// filtered terms. If doc was already present, its previous entry is
// removed first so Insert is idempotent per document.
func (idx *InvertedIndex) Insert(doc string, terms []string) {
	idx.Remove(doc)

	if len(terms) == 0 {
		return
	}

	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		counts[t]++
	}
	if len(counts) == 0 {
		return
	}

	idx.docTerms[doc] = counts
	length := 0
	for term, freq := range counts {
		length += freq
		idx.insertPosting(term, doc, freq)
	}
	idx.docLength[doc] = length
}

func (idx *InvertedIndex) insertPosting(term, doc string, freq int) {
	list := idx.postings[term]
	pos := sort.Search(len(list), func(i int) bool { return list[i].DocName >= doc })
	list = append(list, Posting{})
	copy(list[pos+1:], list[pos:])
	list[pos] = Posting{DocName: doc, TermFrequency: freq}
	idx.postings[term] = list
}

// Remove deletes doc's entry, decrementing document frequencies and
// dropping any posting list left empty. Removing an absent document is a
// no-op.
func (idx *InvertedIndex) Remove(doc string) {
	counts, ok := idx.docTerms[doc]
	if !ok {
		return
	}
	for term := range counts {
		list := idx.postings[term]
		for i, p := range list {
			if p.DocName == doc {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = list
		}
	}
	delete(idx.docTerms, doc)
	delete(idx.docLength, doc)
}

// TermsFor returns the term-frequency map for doc, or nil if absent.
func (idx *InvertedIndex) TermsFor(doc string) map[string]int {
	return idx.docTerms[doc]
}

// Postings returns the sorted posting list for term (nil if absent).
func (idx *InvertedIndex) Postings(term string) []Posting {
	return idx.postings[term]
}

// DocFrequency returns the number of documents containing term.
func (idx *InvertedIndex) DocFrequency(term string) int {
	return len(idx.postings[term])
}

// DocLength returns the stored token length of doc.
func (idx *InvertedIndex) DocLength(doc string) int {
	return idx.docLength[doc]
}

// Size returns the number of indexed documents.
func (idx *InvertedIndex) Size() int {
	return len(idx.docTerms)
}

// Docs returns every indexed document name, unordered.
func (idx *InvertedIndex) Docs() []string {
	out := make([]string, 0, len(idx.docTerms))
	for d := range idx.docTerms {
		out = append(out, d)
	}
	return out
}

// Terms returns every distinct indexed term, unordered.
func (idx *InvertedIndex) Terms() []string {
	out := make([]string, 0, len(idx.postings))
	for t := range idx.postings {
		out = append(out, t)
	}
	return out
}

// Stats computes aggregate statistics over the current index.
func (idx *InvertedIndex) Stats() Stats {
	total := 0
	for _, l := range idx.docLength {
		total += l
	}
	avg := 0.0
	if len(idx.docLength) > 0 {
		avg = float64(total) / float64(len(idx.docLength))
	}
	return Stats{
		DocumentCount: len(idx.docTerms),
		TermCount:     len(idx.postings),
		AvgDocLength:  avg,
	}
}
