// Package index turns project files into searchable documents. It extracts
// symbols and markdown sections, embeds them, and writes each document to
// the lexical index and the vector store under the same id.
package index

import (
	"context"
	"time"
)

// DefaultCollection is the vector collection used when none is configured.
const DefaultCollection = "code"

// DocumentKind is the closed set of indexable units.
type DocumentKind string

const (
	KindCodeSymbol        DocumentKind = "code_symbol"
	KindMarkdownHeading   DocumentKind = "markdown_heading"
	KindMarkdownCodeBlock DocumentKind = "markdown_code_block"
)

// Metadata keys written for every document.
const (
	MetaProjectID = "project_id"
	MetaFilePath  = "file_path"
	MetaLanguage  = "language"
	MetaType      = "type"
	MetaName      = "name"
	MetaLineStart = "line_start"
	MetaLineEnd   = "line_end"
	MetaScope     = "scope"
	MetaFileType  = "fileType"
	MetaKind      = "kind"
)

// Document is one indexable unit. ID is "<filePath>:<lineStart>".
type Document struct {
	ID       string
	Kind     DocumentKind
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// Status is the indexing state of a project.
type Status string

const (
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusError    Status = "error"
)

// IndexStats describes a project's index.
type IndexStats struct {
	ProjectID    string    `json:"project_id"`
	RootPath     string    `json:"root_path"`
	Status       Status    `json:"status"`
	LastIndexed  time.Time `json:"last_indexed"`
	TotalFiles   int       `json:"total_files"`
	TotalSymbols int       `json:"total_symbols"`
	TotalVectors int       `json:"total_vectors"`
	Error        string    `json:"error,omitempty"`
}

// ProjectOptions tunes IndexProject.
type ProjectOptions struct {
	ExcludePatterns []string
	Languages       []string

	// MaxWorkers bounds per-chunk parallelism. Nil selects NumCPU-1.
	// The effective value is always clamped to [1, 4].
	MaxWorkers *int
}

// FileError records a file that failed or indexed with errors.
type FileError struct {
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
}

// ProjectIndexResult summarizes IndexProject.
type ProjectIndexResult struct {
	Success      bool
	IndexedFiles int
	FailedFiles  int
	RemovedFiles int
	TotalSymbols int
	TotalVectors int
	Errors       []FileError
	Duration     time.Duration
}

// FileIndexResult is the outcome of indexing one file.
type FileIndexResult struct {
	FilePath string
	Success  bool

	// HasErrors is set when extraction failed or recovered from syntax
	// errors. Whatever was extracted is still indexed.
	HasErrors bool

	Symbols int
	Vectors int
	Error   error
}

// DeleteResult is the outcome of DeleteFile.
type DeleteResult struct {
	FilePath         string
	Success          bool
	DeletedDocuments int
	Error            error
}

// EventKind identifies an indexing event.
type EventKind string

const (
	EventScanCompleted EventKind = "scan_completed"
	EventFileStarted   EventKind = "file_started"
	EventFileCompleted EventKind = "file_completed"
	EventFileError     EventKind = "file_error"
)

// Event is emitted while files are indexed. Files is set on
// EventScanCompleted only.
type Event struct {
	Kind      EventKind
	ProjectID string
	FilePath  string
	Files     int
	Symbols   int
	Err       error
	Time      time.Time
}

// ScanFilter narrows the files a FileScanner returns.
type ScanFilter struct {
	ExcludePatterns []string
	Languages       []string
}

// FileScanner lists the absolute paths of indexable files under rootPath.
type FileScanner interface {
	Scan(ctx context.Context, rootPath string, filter ScanFilter) ([]string, error)
}
