// Package vectorstore implements the dense-vector store: brute-force
// cosine search plus an optional scalar-quantized (int8) variant (spec
// §4.5). Approximate-nearest-neighbor structures are explicitly out of
// scope (spec §1 Non-goals); search is always O(N*d).
package vectorstore

import (
	"math"
	"sort"
	"sync"

	"github.com/graphmem/graphmem/internal/errs"
)

// Result is a single vector search hit.
type Result struct {
	Name  string
	Score float64 // cosine similarity, in [-1, 1]
}

// Store is the public contract every variant (in-memory, quantized,
// persistent) satisfies.
type Store interface {
	Add(name string, vec []float32) error
	Remove(name string)
	Get(name string) ([]float32, bool)
	Has(name string) bool
	Size() int
	Search(query []float32, k int) ([]Result, error)
}

// Memory is the in-memory, full-precision vector store.
type Memory struct {
	mu      sync.RWMutex
	dim     int
	vectors map[string][]float32
}

// NewMemory returns an empty store. dim is fixed by the first Add call if 0.
func NewMemory(dim int) *Memory {
	return &Memory{dim: dim, vectors: make(map[string][]float32)}
}

var _ Store = (*Memory)(nil)

// Add inserts or replaces the vector for name. All entries in a store
// must share the same dimension.
func (m *Memory) Add(name string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(vec)
	}
	if len(vec) != m.dim {
		return &errs.Error{Kind: errs.KindVectorDimension, Message: "vector dimension mismatch",
			Details: []string{dimDetail(m.dim, len(vec))}}
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.vectors[name] = cp
	return nil
}

func dimDetail(expected, got int) string {
	return "expected " + itoa(expected) + " got " + itoa(got)
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

// Remove deletes name's vector, if present. Removing an absent name is a no-op.
func (m *Memory) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, name)
}

// Get returns name's vector and whether it was present.
func (m *Memory) Get(name string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vectors[name]
	if !ok {
		return nil, false
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	return cp, true
}

// Has reports whether name is present.
func (m *Memory) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vectors[name]
	return ok
}

// Size returns the number of stored vectors.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// Search performs brute-force cosine top-k. An empty store returns an
// empty (not nil-error) result.
func (m *Memory) Search(query []float32, k int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.vectors) == 0 {
		return []Result{}, nil
	}
	if m.dim != 0 && len(query) != m.dim {
		return nil, &errs.Error{Kind: errs.KindVectorDimension, Message: "query dimension mismatch",
			Details: []string{dimDetail(m.dim, len(query))}}
	}

	results := make([]Result, 0, len(m.vectors))
	for name, v := range m.vectors {
		results = append(results, Result{Name: name, Score: Cosine(query, v)})
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

// Cosine computes the cosine similarity of a and b, clamped to [-1, 1].
// Dimension mismatch is the caller's responsibility to check; a
// zero-magnitude vector yields 0.
func Cosine(a, b []float32) float64 {
	var dot, magA, magB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return cos
}
