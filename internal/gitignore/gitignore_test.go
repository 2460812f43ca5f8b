package gitignore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"exact name", "foo.txt", "foo.txt", false, true},
		{"name in subdir", "foo.txt", "a/b/foo.txt", false, true},
		{"other name", "foo.txt", "bar.txt", false, false},
		{"extension", "*.log", "logs/error.log", false, true},
		{"extension mismatch", "*.log", "error.txt", false, false},
		{"star stops at slash", "src/*.go", "src/a/b.go", false, false},
		{"question mark", "file?.txt", "file1.txt", false, true},
		{"question mark one char", "file?.txt", "file12.txt", false, false},
		{"char class", "file[0-9].txt", "file7.txt", false, true},
		{"negated char class", "file[!0-9].txt", "file7.txt", false, false},
		{"rooted", "/build", "build", true, true},
		{"rooted not nested", "/build", "src/build", true, false},
		{"inner slash anchors", "doc/frotz", "a/doc/frotz", false, false},
		{"dir only matches dir", "tmp/", "tmp", true, true},
		{"dir only skips file", "tmp/", "tmp", false, false},
		{"dir only covers contents", "tmp/", "a/tmp/cache.bin", false, true},
		{"leading double star", "**/node_modules", "web/app/node_modules", true, true},
		{"trailing double star", "dist/**", "dist/js/app.js", false, true},
		{"middle double star", "a/**/b", "a/x/y/b", false, true},
		{"middle double star zero dirs", "a/**/b", "a/b", false, true},
		{"contents of ignored dir", "vendor", "vendor/pkg/x.go", false, true},
		{"escaped hash", `\#notes`, "#notes", false, true},
		{"dot is literal", "*.go", "main_go", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromPatterns(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_Negation(t *testing.T) {
	// Given: a broad ignore with a re-include
	m := NewFromPatterns("*.log", "!keep.log", "build/", "!build/keep.txt")

	// Then: last match wins for files
	assert.True(t, m.Match("error.log", false))
	assert.False(t, m.Match("keep.log", false))

	// And: files inside an ignored directory cannot be re-included
	assert.True(t, m.Match("build/keep.txt", false))
}

func TestMatcher_SkipsCommentsAndBlanks(t *testing.T) {
	m := NewFromPatterns("", "   ", "# comment", "/", "*.tmp")

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Match("", false))
	assert.False(t, m.Match(".", true))
}

func TestMatcher_InvalidPatternIgnored(t *testing.T) {
	m := NewFromPatterns("file[z-a].txt")
	assert.Equal(t, 0, m.Len())
}

func TestMatcher_TrailingEscapedSpace(t *testing.T) {
	m := NewFromPatterns(`name\ `)
	assert.True(t, m.Match("name ", false))
	assert.False(t, m.Match("name", false))
}

func TestMatcher_AddFromFile_WithBase(t *testing.T) {
	// Given: a nested .gitignore under web/
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("# generated\n*.cache\n/out\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, "web"))

	// Then: rules apply only below web/, anchored to web/
	assert.True(t, m.Match("web/a/b.cache", false))
	assert.True(t, m.Match("web/out", true))
	assert.False(t, m.Match("web/a/out", true))
	assert.False(t, m.Match("api/b.cache", false))
}

func TestMatcher_AddFromFile_Missing(t *testing.T) {
	err := New().AddFromFile(filepath.Join(t.TempDir(), "nope"), "")
	assert.Error(t, err)
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	m := NewFromPatterns("*.log")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.AddPattern("tmp/")
		}()
		go func() {
			defer wg.Done()
			assert.True(t, m.Match("x.log", false))
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, m.Len())
}
