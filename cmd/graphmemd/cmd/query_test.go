package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCmd_HybridAgainstSeededDemoGraph(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graphmem.db")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"query", "hybrid retrieval engine", "--data", dbPath, "--log-level", "error"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "plan:")
}

func TestQueryCmd_UnknownKindErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graphmem.db")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"query", "anything", "--kind", "nonsense", "--data", dbPath, "--log-level", "error"})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestQueryCmd_JSONOutputIsValid(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graphmem.db")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"query", "graph", "--kind", "bm25", "--json", "--data", dbPath, "--log-level", "error"})

	err := cmd.Execute()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[")
}
