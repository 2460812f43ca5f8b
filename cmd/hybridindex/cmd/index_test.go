package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridindex/internal/async"
	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/search"
	"github.com/Aman-CERP/hybridindex/internal/ui"
)

func searchJSON(t *testing.T, root string, args ...string) []*search.HybridResult {
	t.Helper()
	out, err := runCLI(t, append([]string{"-C", root, "search", "--format", "json"}, args...)...)
	require.NoError(t, err)
	var results []*search.HybridResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	return results
}

func resultIDs(results []*search.HybridResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestIndexSearchStatusClear(t *testing.T) {
	// Given: a fresh project
	isolate(t)
	root := newProject(t)

	// When: indexing it
	out, err := runCLI(t, "index", root, "--plain")

	// Then: both files are indexed and the stores exist
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 files")
	assert.DirExists(t, filepath.Join(root, ".hybridindex", vectorsDirName))
	assert.FileExists(t, filepath.Join(root, ".hybridindex", "lexical.db"))
	assert.False(t, async.HasIncompleteLock(filepath.Join(root, ".hybridindex")))

	t.Run("keyword search finds the method", func(t *testing.T) {
		results := searchJSON(t, root, "Sqrt", "--alpha", "1")
		require.NotEmpty(t, results)
		assert.True(t, strings.HasPrefix(results[0].ID, filepath.Join(root, "vec.go")+":"),
			"top result %s", results[0].ID)
	})

	t.Run("language filter", func(t *testing.T) {
		results := searchJSON(t, root, "Norm", "--language", "markdown")
		require.NotEmpty(t, results)
		for _, id := range resultIDs(results) {
			assert.Contains(t, id, "README.md")
		}
	})

	t.Run("text output", func(t *testing.T) {
		out, err := runCLI(t, "-C", root, "search", "Norm", "-n", "1")
		require.NoError(t, err)
		assert.Contains(t, out, `1 results for "Norm"`)
	})

	t.Run("invalid alpha", func(t *testing.T) {
		_, err := runCLI(t, "-C", root, "search", "Norm", "--alpha", "1.5")
		require.Error(t, err)
	})

	t.Run("status", func(t *testing.T) {
		out, err := runCLI(t, "-C", root, "status", "--json")
		require.NoError(t, err)

		var info ui.StatusInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.Equal(t, "vector-math", info.Stats.ProjectID)
		assert.Equal(t, index.StatusIndexed, info.Stats.Status)
		assert.Equal(t, 2, info.Stats.TotalFiles)
		assert.Positive(t, info.LexicalSize)
		assert.Positive(t, info.VectorSize)
		assert.Equal(t, "static", info.Embedder)
		assert.False(t, info.Interrupted)
	})

	// When: a file is removed and the project indexed again
	require.NoError(t, os.Remove(filepath.Join(root, "README.md")))
	out, err = runCLI(t, "index", root, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "1 removed")

	results := searchJSON(t, root, "geometry helpers")
	for _, id := range resultIDs(results) {
		assert.NotContains(t, id, "README.md")
	}

	// When: clearing the project
	out, err = runCLI(t, "-C", root, "clear")

	// Then: nothing is found any more
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared index for vector-math")
	assert.Empty(t, searchJSON(t, root, "Norm"))
}

func TestIndexCmd_JSON(t *testing.T) {
	isolate(t)
	root := newProject(t)

	out, err := runCLI(t, "index", root, "--json", "--exclude", "*.md")

	require.NoError(t, err)
	var res index.ProjectIndexResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.IndexedFiles)
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	// Given: a project that was never indexed
	isolate(t)
	root := newProject(t)

	// When: searching
	_, err := runCLI(t, "-C", root, "search", "Norm")

	// Then: the user is told to index first
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, err := runCLI(t, "search")

	require.Error(t, err)
}

func TestSearchCmd_UnknownFormat(t *testing.T) {
	_, err := runCLI(t, "search", "Norm", "--format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestStatusCmd_RequiresIndex(t *testing.T) {
	isolate(t)

	_, err := runCLI(t, "-C", newProject(t), "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestClearCmd_NothingToClear(t *testing.T) {
	isolate(t)

	out, err := runCLI(t, "-C", newProject(t), "clear", "--all")

	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to clear")
}

func TestOpenEngine_DataDirLocked(t *testing.T) {
	// Given: an engine holding the data dir
	isolate(t)
	p, err := resolveProject(newProject(t))
	require.NoError(t, err)
	first, err := openEngine(p, nil)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()

	// When: a second engine opens the same dir
	_, err = openEngine(p, nil)

	// Then: it is refused
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use by another process")
}
