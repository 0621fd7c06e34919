package vectorstore

import (
	"sort"
	"sync"

	"github.com/graphmem/graphmem/internal/errs"
)

// qvector is a scalar-quantized vector: each component is an int8 in
// [-127, 127], recoverable as float32(q)*scale/127.
type qvector struct {
	data  []int8
	scale float32 // max(|v|) of the original vector
}

func quantize(vec []float32) qvector {
	var maxAbs float32
	for _, f := range vec {
		a := f
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
		}
	}
	q := qvector{data: make([]int8, len(vec)), scale: maxAbs}
	if maxAbs == 0 {
		return q
	}
	for i, f := range vec {
		scaled := f / maxAbs * 127
		if scaled > 127 {
			scaled = 127
		}
		if scaled < -127 {
			scaled = -127
		}
		q.data[i] = int8(scaled)
	}
	return q
}

func (q qvector) dequantize() []float32 {
	out := make([]float32, len(q.data))
	if q.scale == 0 {
		return out
	}
	for i, v := range q.data {
		out[i] = float32(v) / 127 * q.scale
	}
	return out
}

// Quantized is a scalar-quantized (int8) vector store. It trades a small,
// bounded cosine-similarity error (mean absolute error <= 2% against the
// full-precision store, spec §8) for roughly a quarter of the memory
// footprint of Memory.
type Quantized struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string]qvector
}

// NewQuantized returns an empty quantized store.
func NewQuantized(dim int) *Quantized {
	return &Quantized{dim: dim, vectors: make(map[string]qvector)}
}

var _ Store = (*Quantized)(nil)

// Add quantizes and stores vec under name.
func (q *Quantized) Add(name string, vec []float32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dim == 0 {
		q.dim = len(vec)
	}
	if len(vec) != q.dim {
		return &errs.Error{Kind: errs.KindVectorDimension, Message: "vector dimension mismatch",
			Details: []string{dimDetail(q.dim, len(vec))}}
	}
	q.vectors[name] = quantize(vec)
	return nil
}

// Remove deletes name's vector, if present.
func (q *Quantized) Remove(name string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.vectors, name)
}

// Get dequantizes and returns name's vector.
func (q *Quantized) Get(name string) ([]float32, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	v, ok := q.vectors[name]
	if !ok {
		return nil, false
	}
	return v.dequantize(), true
}

// Has reports whether name is present.
func (q *Quantized) Has(name string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.vectors[name]
	return ok
}

// Size returns the number of stored vectors.
func (q *Quantized) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.vectors)
}

// Search dequantizes each candidate on the fly and scores it against the
// full-precision query vector.
func (q *Quantized) Search(query []float32, k int) ([]Result, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.vectors) == 0 {
		return []Result{}, nil
	}
	if q.dim != 0 && len(query) != q.dim {
		return nil, &errs.Error{Kind: errs.KindVectorDimension, Message: "query dimension mismatch",
			Details: []string{dimDetail(q.dim, len(query))}}
	}

	results := make([]Result, 0, len(q.vectors))
	for name, v := range q.vectors {
		results = append(results, Result{Name: name, Score: Cosine(query, v.dequantize())})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}
