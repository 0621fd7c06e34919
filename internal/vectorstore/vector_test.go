package vectorstore

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/graphmem/graphmem/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineIdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestCosineOppositeVectorsIsMinusOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	neg := []float32{-1, -2, -3, -4}
	assert.InDelta(t, -1.0, Cosine(v, neg), 1e-9)
}

func TestCosineZeroMagnitudeIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
}

func TestMemoryAddDimensionMismatch(t *testing.T) {
	m := NewMemory(3)
	err := m.Add("a", []float32{1, 2})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindVectorDimension))
}

func TestMemorySearchEmptyStoreReturnsEmpty(t *testing.T) {
	m := NewMemory(0)
	results, err := m.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemorySearchRanksByCosineDescending(t *testing.T) {
	m := NewMemory(2)
	require.NoError(t, m.Add("same", []float32{1, 0}))
	require.NoError(t, m.Add("orthogonal", []float32{0, 1}))
	require.NoError(t, m.Add("opposite", []float32{-1, 0}))

	results, err := m.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "same", results[0].Name)
	assert.Equal(t, "orthogonal", results[1].Name)
	assert.Equal(t, "opposite", results[2].Name)
}

func TestMemoryRemoveAndHas(t *testing.T) {
	m := NewMemory(2)
	require.NoError(t, m.Add("a", []float32{1, 1}))
	assert.True(t, m.Has("a"))
	m.Remove("a")
	assert.False(t, m.Has("a"))
	assert.Equal(t, 0, m.Size())
}

func TestMemorySaveLoadRoundTrip(t *testing.T) {
	m := NewMemory(3)
	require.NoError(t, m.Add("a", []float32{1, 2, 3}))
	require.NoError(t, m.Add("b", []float32{4, 5, 6}))

	path := filepath.Join(t.TempDir(), "vectors.gob")
	require.NoError(t, m.Save(path))

	loaded := NewMemory(0)
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Size())
	va, ok := loaded.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, va)
}

// Quantization must keep mean absolute cosine error against the
// full-precision store within 2% (spec §8).
func TestQuantizationMeanAbsoluteErrorWithinTolerance(t *testing.T) {
	full := NewMemory(8)
	quant := NewQuantized(8)

	vectors := [][]float32{
		{1, 2, 3, 4, 5, 6, 7, 8},
		{-1, 0.5, -2, 3, -4, 2, 1, -3},
		{0.1, 0.2, 0.3, 0.1, 0.5, 0.2, 0.1, 0.4},
		{10, -10, 5, -5, 2, -2, 1, -1},
	}
	for i, v := range vectors {
		name := string(rune('a' + i))
		require.NoError(t, full.Add(name, v))
		require.NoError(t, quant.Add(name, v))
	}

	query := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	fullResults, err := full.Search(query, len(vectors))
	require.NoError(t, err)
	quantResults, err := quant.Search(query, len(vectors))
	require.NoError(t, err)

	fullByName := map[string]float64{}
	for _, r := range fullResults {
		fullByName[r.Name] = r.Score
	}

	var totalAbsErr float64
	for _, r := range quantResults {
		totalAbsErr += math.Abs(r.Score - fullByName[r.Name])
	}
	meanAbsErr := totalAbsErr / float64(len(quantResults))
	assert.LessOrEqual(t, meanAbsErr, 0.02)
}

func TestQuantizedDimensionMismatch(t *testing.T) {
	q := NewQuantized(4)
	err := q.Add("x", []float32{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindVectorDimension))
}
