// Package scanner discovers indexable files in a project. It honours
// .gitignore files, built-in and configured exclude patterns, a size limit
// and an optional language filter.
package scanner

import "time"

// DefaultMaxFileSize is used when Options.MaxFileSize is not set.
const DefaultMaxFileSize = 1 << 20

// FileInfo describes one discovered file.
type FileInfo struct {
	Path        string // relative to the scan root, slash separated
	AbsPath     string
	Size        int64
	ModTime     time.Time
	Language    string // "markdown" or a registered code language
	IsGenerated bool
}

// Options configures a scan.
type Options struct {
	// ExcludePatterns use gitignore syntax and apply from the root.
	ExcludePatterns []string

	// Languages restricts results to these languages (empty means all).
	Languages []string

	// MaxFileSize in bytes (0 selects DefaultMaxFileSize).
	MaxFileSize int64

	// RespectGitignore reads .gitignore files at every level.
	RespectGitignore bool

	// SkipGenerated drops files carrying a "Code generated" style marker.
	SkipGenerated bool

	// Workers bounds the content checks run in parallel (0 = NumCPU).
	Workers int
}

// DefaultExcludePatterns are always applied.
var DefaultExcludePatterns = []string{
	".git/",
	".hybridindex/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".venv/",
	"dist/",
	"build/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
}

// sensitivePatterns are never indexed.
var sensitivePatterns = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa*",
	"id_dsa*",
	"id_ecdsa*",
	"id_ed25519*",
	".aws/",
	".ssh/",
}

var generatedMarkers = []string{
	"// Code generated",
	"// DO NOT EDIT",
	"/* DO NOT EDIT",
	"# Generated by",
	"<!-- AUTO-GENERATED -->",
	"// Generated by",
}
