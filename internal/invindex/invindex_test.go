package invindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/graphmem/graphmem/internal/graphmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entity(name, entityType string, obs ...string) *graphmodel.Entity {
	return &graphmodel.Entity{Name: name, EntityType: entityType, Observations: obs}
}

func sampleGraph() *graphmodel.KnowledgeGraph {
	g := graphmodel.NewKnowledgeGraph()
	g.Entities["Alice"] = entity("Alice", "person", "Engineer at TechCorp")
	g.Entities["Bob"] = entity("Bob", "person", "Manager at TechCorp")
	g.Entities["Charlie"] = entity("Charlie", "person", "Designer at TechCorp")
	g.Entities["TechCorp"] = entity("TechCorp", "company", "Tech company")
	return g
}

func TestInvertedIndexNoPostingsForAbsentTerm(t *testing.T) {
	idx := NewInvertedIndex()
	idx.Insert("doc1", []string{"engineer", "at", "techcorp"})
	assert.Nil(t, idx.Postings("missing"))
	assert.Equal(t, 1, idx.DocFrequency("engineer"))
}

func TestInvertedIndexRemoveDropsEmptyPostings(t *testing.T) {
	idx := NewInvertedIndex()
	idx.Insert("doc1", []string{"engineer"})
	idx.Remove("doc1")
	assert.Nil(t, idx.Postings("engineer"))
	assert.Equal(t, 0, idx.Size())
}

func TestInvertedIndexPostingsSortedByDocName(t *testing.T) {
	idx := NewInvertedIndex()
	idx.Insert("zebra", []string{"term"})
	idx.Insert("alpha", []string{"term"})
	idx.Insert("middle", []string{"term"})
	list := idx.Postings("term")
	require.Len(t, list, 3)
	assert.Equal(t, []string{"alpha", "middle", "zebra"}, []string{list[0].DocName, list[1].DocName, list[2].DocName})
}

// S1 — Lexical ranking scenario from spec §8.
func TestTFIDFScenarioS1LexicalRanking(t *testing.T) {
	g := sampleGraph()
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)

	results := tf.Score([]string{"engineer"})
	require.NotEmpty(t, results)
	assert.Equal(t, "Alice", results[0].Name)
	assert.Greater(t, results[0].Score, 0.0)
	// Bob/Charlie/TechCorp never contain "engineer" so they're excluded entirely.
	names := map[string]bool{}
	for _, r := range results {
		names[r.Name] = true
	}
	assert.False(t, names["Bob"])
	assert.False(t, names["Charlie"])
	assert.False(t, names["TechCorp"])
}

func TestTFIDFSingleDocumentCorpusScoresZero(t *testing.T) {
	g := graphmodel.NewKnowledgeGraph()
	g.Entities["Solo"] = entity("Solo", "thing", "alone")
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)

	results := tf.Score([]string{"alone"})
	assert.Empty(t, results, "idf=log(1/1)=0 must zero out the score")
}

func TestBM25PositiveEvenForSingleDocument(t *testing.T) {
	g := graphmodel.NewKnowledgeGraph()
	g.Entities["Solo"] = entity("Solo", "thing", "alone")
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)
	bm := NewBM25Index(tf.Inverted(), DefaultBM25Params())

	results := bm.Score([]string{"alone"})
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.0)
}

// S5 — incremental consistency scenario from spec §8.
func TestUpdateIndexMatchesFullRebuild(t *testing.T) {
	g := sampleGraph()
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)

	delete(g.Entities, "Alice")
	tf.UpdateIndex(g, []string{"Alice"})
	assert.Empty(t, tf.Score([]string{"engineer"}))

	g.Entities["Alice"] = entity("Alice", "person", "Engineer at TechCorp")
	tf.UpdateIndex(g, []string{"Alice"})

	rebuilt := NewTFIDFIndex(nil, nil)
	rebuilt.BuildIndex(g)

	got := tf.Score([]string{"engineer"})
	want := rebuilt.Score([]string{"engineer"})
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Name, got[i].Name)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
	}
}

func TestUpdateIndexRemovesIDFWhenTermDisappears(t *testing.T) {
	g := graphmodel.NewKnowledgeGraph()
	g.Entities["A"] = entity("A", "thing", "unique")
	g.Entities["B"] = entity("B", "thing", "common")
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)
	assert.NotEqual(t, 0.0, tf.IDF("unique"))

	g.Entities["A"] = entity("A", "thing", "common")
	tf.UpdateIndex(g, []string{"A"})
	assert.Equal(t, 0.0, tf.IDF("unique"))
}

func TestSaveLoadRoundTripIsByteIdenticalInScore(t *testing.T) {
	g := sampleGraph()
	tf := NewTFIDFIndex(nil, nil)
	tf.BuildIndex(g)

	dir := t.TempDir()
	path := filepath.Join(dir, "tfidf.ndjson")
	require.NoError(t, tf.SaveIndex(path))

	loaded := NewTFIDFIndex(nil, nil)
	require.NoError(t, loaded.LoadIndex(path))

	for _, query := range [][]string{{"engineer"}, {"techcorp"}, {"manager"}} {
		want := tf.Score(query)
		got := loaded.Score(query)
		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].Name, got[i].Name)
			assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
		}
	}

	_, err := os.Stat(path)
	require.NoError(t, err)
}
