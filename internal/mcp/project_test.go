package mcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProject(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantName string
		wantType string
	}{
		{
			name:     "go module",
			files:    map[string]string{"go.mod": "// comment\nmodule github.com/acme/search-kit\n\ngo 1.25\n"},
			wantName: "search-kit",
			wantType: "go",
		},
		{
			name:     "scoped npm package",
			files:    map[string]string{"package.json": `{"name": "@acme/web-ui"}`},
			wantName: "web-ui",
			wantType: "node",
		},
		{
			name: "pyproject",
			files: map[string]string{"pyproject.toml": "[tool.black]\nname = \"wrong\"\n\n" +
				"[project]\nname = \"ranker\"\n"},
			wantName: "ranker",
			wantType: "python",
		},
		{
			name:     "go wins over node",
			files:    map[string]string{"go.mod": "module example.com/svc\n", "package.json": `{"name":"web"}`},
			wantName: "svc",
			wantType: "go",
		},
		{
			name:     "invalid package.json falls back",
			files:    map[string]string{"package.json": "{"},
			wantType: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a project directory with manifests
			root := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
			}

			// When: detecting
			info := DetectProject("p1", root)

			// Then: name and type come from the first manifest found
			want := tt.wantName
			if want == "" {
				want = filepath.Base(root)
			}
			assert.Equal(t, ProjectInfo{ID: "p1", Name: want, RootPath: root, Type: tt.wantType}, info)
		})
	}
}
