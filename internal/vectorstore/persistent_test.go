package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/internal/graphmodel"
)

// fakeStore is a minimal in-memory graphmodel.Store stub for testing the
// embedding-mirroring behavior of Persistent without a real database.
type fakeStore struct {
	embeddings map[string][]float32
}

func newFakeStore() *fakeStore { return &fakeStore{embeddings: make(map[string][]float32)} }

func (f *fakeStore) LoadGraph(ctx context.Context) (*graphmodel.KnowledgeGraph, error) {
	return graphmodel.NewKnowledgeGraph(), nil
}
func (f *fakeStore) GetGraphForMutation(ctx context.Context) (*graphmodel.KnowledgeGraph, error) {
	return graphmodel.NewKnowledgeGraph(), nil
}
func (f *fakeStore) SaveGraph(ctx context.Context, g *graphmodel.KnowledgeGraph) error { return nil }
func (f *fakeStore) StoreEmbedding(ctx context.Context, name string, vec []float32, model string) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	f.embeddings[name] = cp
	return nil
}
func (f *fakeStore) RemoveEmbedding(ctx context.Context, name string) error {
	delete(f.embeddings, name)
	return nil
}
func (f *fakeStore) LoadAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	out := make(map[string][]float32, len(f.embeddings))
	for k, v := range f.embeddings {
		out[k] = v
	}
	return out, nil
}
func (f *fakeStore) ClearAllEmbeddings(ctx context.Context) error {
	f.embeddings = make(map[string][]float32)
	return nil
}
func (f *fakeStore) Subscribe(listener graphmodel.Listener) func() { return func() {} }

var _ graphmodel.Store = (*fakeStore)(nil)

func TestPersistent_LoadsExistingEmbeddingsAtInit(t *testing.T) {
	backing := newFakeStore()
	backing.embeddings["alice"] = []float32{1, 0, 0}

	p, err := NewPersistent(context.Background(), backing, "mock", 3)
	require.NoError(t, err)

	assert.True(t, p.Has("alice"))
	assert.Equal(t, 1, p.Size())
}

func TestPersistent_AddContextMirrorsToBacking(t *testing.T) {
	backing := newFakeStore()
	p, err := NewPersistent(context.Background(), backing, "mock", 3)
	require.NoError(t, err)

	require.NoError(t, p.AddContext(context.Background(), "bob", []float32{0, 1, 0}))

	assert.True(t, p.Has("bob"))
	assert.Contains(t, backing.embeddings, "bob")
}

func TestPersistent_RemoveContextMirrorsToBacking(t *testing.T) {
	backing := newFakeStore()
	backing.embeddings["carol"] = []float32{0, 0, 1}
	p, err := NewPersistent(context.Background(), backing, "mock", 3)
	require.NoError(t, err)

	require.NoError(t, p.RemoveContext(context.Background(), "carol"))

	assert.False(t, p.Has("carol"))
	assert.NotContains(t, backing.embeddings, "carol")
}

func TestPersistent_ClearContext(t *testing.T) {
	backing := newFakeStore()
	backing.embeddings["dan"] = []float32{1, 1, 0}
	p, err := NewPersistent(context.Background(), backing, "mock", 3)
	require.NoError(t, err)

	require.NoError(t, p.ClearContext(context.Background()))

	assert.Equal(t, 0, p.Size())
	assert.Empty(t, backing.embeddings)
}

func TestNewPersistent_NilBacking(t *testing.T) {
	_, err := NewPersistent(context.Background(), nil, "mock", 3)
	assert.Error(t, err)
}

func TestFactory_SelectsVariant(t *testing.T) {
	ctx := context.Background()

	mem, err := Factory(ctx, KindMemory, 3, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, mem)

	quant, err := Factory(ctx, KindQuantized, 3, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &Quantized{}, quant)

	backing := newFakeStore()
	pers, err := Factory(ctx, KindPersistent, 3, backing, "mock")
	require.NoError(t, err)
	assert.IsType(t, &Persistent{}, pers)

	_, err = Factory(ctx, "bogus", 3, nil, "")
	assert.Error(t, err)
}
