package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RegisterResources(t *testing.T) {
	// Given: two indexed files
	ix := &fakeIndexer{}
	s := newTestServer(t, &fakeSearcher{}, ix, nil)
	a := filepath.Join(s.cfg.RootPath, "a.go")
	b := filepath.Join(s.cfg.RootPath, "docs", "b.md")
	ix.files = []string{a, b}

	// When: registering
	n, err := s.RegisterResources(t.Context())

	// Then: both are registered
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestServer_RegisterResources_ListError(t *testing.T) {
	s := newTestServer(t, &fakeSearcher{}, &fakeIndexer{filesErr: errors.New("bolt closed")}, nil)

	_, err := s.RegisterResources(t.Context())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bolt closed")
}

func TestServer_ReadFileResource(t *testing.T) {
	// Given: an indexed file, an unindexed file and an oversized indexed file
	ix := &fakeIndexer{}
	s := newTestServer(t, &fakeSearcher{}, ix, nil)
	root := s.cfg.RootPath

	indexed := filepath.Join(root, "a.go")
	unindexed := filepath.Join(root, "b.go")
	large := filepath.Join(root, "large.go")
	gone := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(indexed, []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(unindexed, []byte("package b\n"), 0o644))
	require.NoError(t, os.WriteFile(large, []byte(strings.Repeat("x", MaxResourceSize+1)), 0o644))
	ix.files = []string{indexed, gone, large}

	t.Run("indexed file", func(t *testing.T) {
		res, err := s.ReadFileResource(t.Context(), indexed)
		require.NoError(t, err)
		require.Len(t, res.Contents, 1)
		assert.Equal(t, "package a\n", res.Contents[0].Text)
		assert.Equal(t, "text/x-go", res.Contents[0].MIMEType)
		assert.Equal(t, "file://"+filepath.ToSlash(indexed), res.Contents[0].URI)
	})

	errorCases := []struct {
		name     string
		path     string
		wantCode int
	}{
		{"not indexed", unindexed, ErrCodeInvalidParams},
		{"outside root", filepath.Join(filepath.Dir(root), "other.go"), ErrCodeInvalidParams},
		{"relative", "a.go", ErrCodeInvalidParams},
		{"deleted", gone, ErrCodeFileNotFound},
		{"too large", large, ErrCodeFileTooLarge},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ReadFileResource(t.Context(), tt.path)
			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.wantCode, mcpErr.Code)
		})
	}
}

func TestServer_IsValidPath(t *testing.T) {
	s := newTestServer(t, &fakeSearcher{}, &fakeIndexer{}, nil)
	root := s.cfg.RootPath

	assert.True(t, s.isValidPath(filepath.Join(root, "a.go")))
	assert.True(t, s.isValidPath(filepath.Join(root, "..data", "a.go")))
	assert.False(t, s.isValidPath(""))
	assert.False(t, s.isValidPath("a.go"))
	assert.False(t, s.isValidPath(filepath.Join(root, "..", "a.go")))
	assert.False(t, s.isValidPath(filepath.Dir(root)))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "12 B", humanSize(12))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 MB", humanSize(1536*1024))
}
