package mcp

import (
	"github.com/Aman-CERP/hybridindex/internal/async"
)

// Tool names.
const (
	ToolSearch       = "search"
	ToolIndexProject = "index_project"
	ToolIndexStatus  = "index_status"
	ToolQueueStatus  = "queue_status"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the search query, may be empty to rank by vector similarity only"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Languages   []string `json:"languages,omitempty" jsonschema:"filter by language, e.g. go, python, markdown"`
	FileTypes   []string `json:"file_types,omitempty" jsonschema:"filter by file extension without the dot"`
	SymbolTypes []string `json:"symbol_types,omitempty" jsonschema:"filter by symbol type: function, method, class, heading, code_block"`
	Path        string   `json:"path,omitempty" jsonschema:"only results whose id contains this path fragment"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Query   string               `json:"query"`
	Results []SearchResultOutput `json:"results" jsonschema:"ranked results, best first"`

	// Indexing is set while a project run is in progress; results may be
	// incomplete.
	Indexing bool `json:"indexing,omitempty"`
}

// SearchResultOutput is one ranked document.
type SearchResultOutput struct {
	ID           string  `json:"id" jsonschema:"document id, file path and start line"`
	FilePath     string  `json:"file_path,omitempty"`
	LineStart    int     `json:"line_start,omitempty"`
	LineEnd      int     `json:"line_end,omitempty"`
	Language     string  `json:"language,omitempty"`
	SymbolType   string  `json:"symbol_type,omitempty"`
	Symbol       string  `json:"symbol,omitempty"`
	Scope        string  `json:"scope,omitempty"`
	Score        float64 `json:"score" jsonschema:"hybrid score between 0 and 1"`
	LexicalScore float64 `json:"lexical_score"`
	VectorScore  float64 `json:"vector_score"`
	Snippet      string  `json:"snippet,omitempty" jsonschema:"source lines of the matched document"`
}

// IndexProjectInput defines the input schema for the index_project tool.
type IndexProjectInput struct {
	Wait bool `json:"wait,omitempty" jsonschema:"block until indexing finishes"`
}

// IndexProjectOutput reports a started or finished project run.
type IndexProjectOutput struct {
	Started  bool                        `json:"started"`
	Message  string                      `json:"message"`
	Progress async.IndexProgressSnapshot `json:"progress"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo   `json:"project"`
	Stats      IndexStats    `json:"stats"`
	Embeddings EmbeddingInfo `json:"embeddings"`

	// Indexing is present once a background run was started.
	Indexing *async.IndexProgressSnapshot `json:"indexing,omitempty"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats contains statistics about the index.
type IndexStats struct {
	Status       string `json:"status"`
	FileCount    int    `json:"file_count"`
	SymbolCount  int    `json:"symbol_count"`
	VectorCount  int    `json:"vector_count"`
	LastIndexed  string `json:"last_indexed,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// QueueStatusInput defines the input schema for the queue_status tool (no parameters).
type QueueStatusInput struct{}

// QueueStatusOutput mirrors the update queue counters.
type QueueStatusOutput struct {
	Enabled bool             `json:"enabled" jsonschema:"false when no file watcher feeds the queue"`
	Stats   async.QueueStats `json:"stats"`
}
