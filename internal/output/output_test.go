package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/search"
)

func TestWriter_Messages(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"status", func(w *Writer) { w.Status("🔍", "Scanning...") }, "🔍 Scanning...\n"},
		{"status without icon", func(w *Writer) { w.Status("", "details") }, "   details\n"},
		{"success", func(w *Writer) { w.Successf("Indexed %d files", 3) }, "✅ Indexed 3 files\n"},
		{"warning", func(w *Writer) { w.Warningf("%d failed", 1) }, "⚠️  1 failed\n"},
		{"error", func(w *Writer) { w.Errorf("bad %s", "input") }, "❌ bad input\n"},
		{"newline", func(w *Writer) { w.Newline() }, "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tt.write(New(buf))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_JSON(t *testing.T) {
	// Given: a writer
	buf := &bytes.Buffer{}

	// When: encoding a value
	require.NoError(t, New(buf).JSON(map[string]int{"files": 2}))

	// Then: it is indented JSON
	assert.Equal(t, "{\n  \"files\": 2\n}\n", buf.String())
}

func TestWriter_SearchResults(t *testing.T) {
	// Given: two results, one without metadata
	results := []*search.HybridResult{
		{
			ID:           "/repo/a.go:4",
			HybridScore:  0.9,
			LexicalScore: 1,
			VectorScore:  0.8,
			Metadata: map[string]any{
				index.MetaType:     "method",
				index.MetaName:     "Norm",
				index.MetaScope:    "Vec",
				index.MetaLanguage: "go",
			},
		},
		{ID: "/repo/b.md:1", HybridScore: 0.25},
	}

	// When: printing them
	buf := &bytes.Buffer{}
	New(buf).SearchResults("norm", results)

	// Then: rank, id, scores and location are shown
	out := buf.String()
	assert.Contains(t, out, `2 results for "norm"`)
	assert.Contains(t, out, " 1. /repo/a.go:4  0.900 (lexical 1.000, vector 0.800)")
	assert.Contains(t, out, "    method Norm in Vec (go)")
	assert.Contains(t, out, " 2. /repo/b.md:1  0.250")
}

func TestWriter_SearchResults_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).SearchResults("nothing", nil)

	assert.Equal(t, "🔍 No results for \"nothing\"\n", buf.String())
}
