package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphmem/graphmem/internal/graphmodel"
)

func newBooleanTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, _ := newTestEngine(t, func(g *graphmodel.KnowledgeGraph) {
		seedEntity(g, "Alice", "person", "Alice builds distributed graph systems")
		seedEntity(g, "Bob", "person", "Bob builds web frontends")
		seedEntity(g, "Carol", "person", "Carol writes about distributed systems theory")
	})
	return engine
}

func names(results []SearchResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Name)
	}
	return out
}

func TestSearchBoolean_And(t *testing.T) {
	engine := newBooleanTestEngine(t)
	results, err := engine.SearchBoolean("distributed AND graph", nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Alice"}, names(results))
}

func TestSearchBoolean_Or(t *testing.T) {
	engine := newBooleanTestEngine(t)
	results, err := engine.SearchBoolean("frontends OR theory", nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Bob", "Carol"}, names(results))
}

func TestSearchBoolean_Not(t *testing.T) {
	engine := newBooleanTestEngine(t)
	results, err := engine.SearchBoolean("distributed NOT graph", nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Carol"}, names(results))
}

func TestSearchBoolean_ImplicitAndAndParentheses(t *testing.T) {
	engine := newBooleanTestEngine(t)
	results, err := engine.SearchBoolean("(distributed systems) AND NOT frontends", nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Alice", "Carol"}, names(results))
}

func TestSearchBoolean_QuotedPhrase(t *testing.T) {
	engine := newBooleanTestEngine(t)
	results, err := engine.SearchBoolean(`"distributed graph systems"`, nil, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Alice"}, names(results))
}

func TestSearchBoolean_UnbalancedParentheses(t *testing.T) {
	engine := newBooleanTestEngine(t)
	_, err := engine.SearchBoolean("(distributed AND graph", nil, 10)
	require.Error(t, err)
}

func TestSearchBoolean_EmptyExpression(t *testing.T) {
	engine := newBooleanTestEngine(t)
	_, err := engine.SearchBoolean("   ", nil, 10)
	require.Error(t, err)
}

func TestSearchBoolean_RespectsFilters(t *testing.T) {
	engine, _ := newTestEngine(t, func(g *graphmodel.KnowledgeGraph) {
		seedEntity(g, "Alice", "person", "distributed graph systems")
		seedEntity(g, "Widget", "product", "distributed graph systems")
	})

	results, err := engine.SearchBoolean("distributed AND graph", &Filters{EntityTypes: []string{"person"}}, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Alice"}, names(results))
}
