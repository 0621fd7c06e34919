package graphstoresql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/internal/graphmodel"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SaveAndLoadGraph(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := graphmodel.NewKnowledgeGraph()
	importance := 7.5
	g.Entities["Alice"] = &graphmodel.Entity{
		Name: "Alice", EntityType: "person", Observations: []string{"Engineer at TechCorp"},
		Tags: []string{"vip"}, Importance: &importance,
		CreatedAt: time.Now(), LastModified: time.Now(), LastAccessedAt: time.Now(),
	}
	g.Entities["TechCorp"] = &graphmodel.Entity{
		Name: "TechCorp", EntityType: "org",
		CreatedAt: time.Now(), LastModified: time.Now(), LastAccessedAt: time.Now(),
	}
	require.NoError(t, g.AddRelation(&graphmodel.Relation{From: "Alice", To: "TechCorp", RelationType: "works_at"}))

	require.NoError(t, s.SaveGraph(ctx, g))

	loaded, err := s.LoadGraph(ctx)
	require.NoError(t, err)

	assert.Len(t, loaded.Entities, 2)
	require.Contains(t, loaded.Entities, "Alice")
	assert.Equal(t, []string{"Engineer at TechCorp"}, loaded.Entities["Alice"].Observations)
	require.NotNil(t, loaded.Entities["Alice"].Importance)
	assert.InDelta(t, 7.5, *loaded.Entities["Alice"].Importance, 1e-9)
	assert.Len(t, loaded.Relations, 1)
	assert.Equal(t, "works_at", loaded.Relations[0].RelationType)
}

func TestStore_SaveGraphOverwritesPrior(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g1 := graphmodel.NewKnowledgeGraph()
	g1.Entities["A"] = &graphmodel.Entity{Name: "A"}
	require.NoError(t, s.SaveGraph(ctx, g1))

	g2 := graphmodel.NewKnowledgeGraph()
	g2.Entities["B"] = &graphmodel.Entity{Name: "B"}
	require.NoError(t, s.SaveGraph(ctx, g2))

	loaded, err := s.LoadGraph(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Entities, 1)
	assert.Contains(t, loaded.Entities, "B")
}

func TestStore_EmbeddingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreEmbedding(ctx, "Alice", []float32{0.1, 0.2, 0.3}, "mock"))
	require.NoError(t, s.StoreEmbedding(ctx, "Bob", []float32{0.4, 0.5, 0.6}, "mock"))

	all, err := s.LoadAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, toFloat64(all["Alice"]), 1e-6)

	require.NoError(t, s.RemoveEmbedding(ctx, "Alice"))
	all, err = s.LoadAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.NotContains(t, all, "Alice")

	require.NoError(t, s.ClearAllEmbeddings(ctx))
	all, err = s.LoadAllEmbeddings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_StoreEmbeddingUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.StoreEmbedding(ctx, "Alice", []float32{1, 0}, "mock"))
	require.NoError(t, s.StoreEmbedding(ctx, "Alice", []float32{0, 1}, "mock"))

	all, err := s.LoadAllEmbeddings(ctx)
	require.NoError(t, err)
	require.Contains(t, all, "Alice")
	assert.InDeltaSlice(t, []float64{0, 1}, toFloat64(all["Alice"]), 1e-6)
}

func TestStore_SubscribePublishesEntityCreated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var events []graphmodel.Event
	unsubscribe := s.Subscribe(func(ev graphmodel.Event) { events = append(events, ev) })
	defer unsubscribe()

	g := graphmodel.NewKnowledgeGraph()
	g.Entities["Alice"] = &graphmodel.Entity{Name: "Alice"}
	require.NoError(t, s.SaveGraph(ctx, g))

	var sawCreated, sawSaved bool
	for _, ev := range events {
		if ev.Type == graphmodel.EventEntityCreated && ev.Name == "Alice" {
			sawCreated = true
		}
		if ev.Type == graphmodel.EventGraphSaved {
			sawSaved = true
		}
	}
	assert.True(t, sawCreated)
	assert.True(t, sawSaved)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
