// Package search provides hybrid search: BM25 lexical results and vector
// similarity results are normalized independently and fused with a linear
// alpha blend.
package search

// DefaultAlpha weights lexical and vector scores equally.
const DefaultAlpha = 0.5

// ScoredID is a document id with a score.
type ScoredID struct {
	ID    string
	Score float64
}

// MergedResult holds both raw scores of one candidate. A side the
// candidate was not returned by scores 0.
type MergedResult struct {
	ID           string
	LexicalScore float64
	VectorScore  float64
	Metadata     map[string]any
}

// HybridResult is a ranked search hit. LexicalScore and VectorScore are the
// normalized components of HybridScore.
type HybridResult struct {
	ID           string         `json:"id"`
	HybridScore  float64        `json:"score"`
	LexicalScore float64        `json:"lexical_score"`
	VectorScore  float64        `json:"vector_score"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Filter restricts results. Every non-empty field must match (AND logic);
// within a field any listed value matches.
type Filter struct {
	// FileTypes matches metadata "fileType" (extension without dot).
	FileTypes []string

	// Languages matches metadata "language".
	Languages []string

	// PathPattern matches when the document id contains it.
	PathPattern string

	// SymbolTypes matches metadata "type" (function, method, heading, ...).
	SymbolTypes []string

	// ProjectID matches metadata "project_id".
	ProjectID string
}

// IsEmpty reports whether f imposes no constraint.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.FileTypes) == 0 && len(f.Languages) == 0 &&
		f.PathPattern == "" && len(f.SymbolTypes) == 0 && f.ProjectID == "")
}
