package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the maximum file size for resources (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources registers every indexed file of the project as an MCP
// resource. It returns the number of files registered.
func (s *Server) RegisterResources(ctx context.Context) (int, error) {
	files, err := s.indexer.IndexedFiles(s.cfg.ProjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to list indexed files: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.registerFileResource(path)
	}

	s.logger.Info("registered resources", "count", len(files))
	return len(files), nil
}

// registerFileResource registers a single file as an MCP resource.
func (s *Server) registerFileResource(path string) {
	description := s.relativePath(path)
	if info, err := os.Stat(path); err == nil {
		description = fmt.Sprintf("%s (%s)", description, humanSize(info.Size()))
	}

	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(path),
			URI:         fileURI(path),
			Description: description,
			MIMEType:    MimeTypeForPath(path),
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.ReadFileResource(ctx, path)
		},
	)
}

// ReadFileResource returns the content of an indexed file under the project
// root.
func (s *Server) ReadFileResource(_ context.Context, path string) (*mcp.ReadResourceResult, error) {
	if !s.isValidPath(path) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", path))
	}

	indexed, err := s.indexer.IndexedFiles(s.cfg.ProjectID)
	if err != nil {
		return nil, MapError(err)
	}
	if _, found := slices.BinarySearch(indexed, path); !found {
		return nil, NewInvalidParamsError(fmt.Sprintf("file not indexed: %s", s.relativePath(path)))
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", s.relativePath(path)),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize),
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      fileURI(path),
				MIMEType: MimeTypeForPath(path),
				Text:     string(content),
			},
		},
	}, nil
}

// isValidPath reports whether path is absolute and inside the project root.
func (s *Server) isValidPath(path string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(s.cfg.RootPath, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Server) relativePath(path string) string {
	if rel, err := filepath.Rel(s.cfg.RootPath, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
