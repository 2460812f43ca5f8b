package mcp

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/hybridindex/internal/chunk"
)

// languageMimeTypes maps indexed languages to MIME types.
var languageMimeTypes = map[string]string{
	"go":                   "text/x-go",
	"python":               "text/x-python",
	"javascript":           "text/javascript",
	"typescript":           "text/typescript",
	"jsx":                  "text/javascript",
	"tsx":                  "text/typescript",
	"java":                 "text/x-java",
	"c":                    "text/x-c",
	"cpp":                  "text/x-c++",
	"rust":                 "text/x-rust",
	chunk.LanguageMarkdown: "text/markdown",
}

// extensionMimeTypes covers files the language registry does not know.
var extensionMimeTypes = map[string]string{
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
	".sh":   "text/x-sh",
	".sql":  "text/x-sql",
}

// MimeTypeForPath returns the MIME type for a file path, "text/plain" when
// unknown.
func MimeTypeForPath(path string) string {
	if mime, ok := languageMimeTypes[chunk.LanguageForPath(path)]; ok {
		return mime
	}
	if mime, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "text/plain"
}
