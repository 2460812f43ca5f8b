package mcp

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Aman-CERP/hybridindex/internal/chunk"
	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/search"
)

// maxSnippetLines bounds the source lines attached to a result.
const maxSnippetLines = 20

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []SearchResultOutput) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// formatResult formats a single result.
func formatResult(sb *strings.Builder, num int, r SearchResultOutput) {
	location := r.ID
	if r.FilePath != "" && r.LineStart > 0 {
		location = fmt.Sprintf("%s:%d-%d", r.FilePath, r.LineStart, r.LineEnd)
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, location, r.Score)

	if r.Symbol != "" {
		fmt.Fprintf(sb, "**%s** `%s`", r.SymbolType, r.Symbol)
		if r.Scope != "" {
			fmt.Fprintf(sb, " in `%s`", r.Scope)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(sb, "lexical %.2f, vector %.2f\n\n", r.LexicalScore, r.VectorScore)

	if r.Snippet == "" {
		return
	}
	if r.Language == chunk.LanguageMarkdown {
		sb.WriteString(r.Snippet)
		sb.WriteString("\n\n---\n\n")
		return
	}
	lang := r.Language
	if lang == "" {
		lang = "text"
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, r.Snippet)
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a ranked result using the document metadata.
func ToSearchResultOutput(r *search.HybridResult) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}

	out := SearchResultOutput{
		ID:           r.ID,
		Score:        r.HybridScore,
		LexicalScore: r.LexicalScore,
		VectorScore:  r.VectorScore,
	}
	if r.Metadata == nil {
		// Lexical-only hits carry no metadata; the id still names the file.
		out.FilePath, out.LineStart = splitDocumentID(r.ID)
		out.LineEnd = out.LineStart
		return out
	}

	out.FilePath = metaString(r.Metadata, index.MetaFilePath)
	out.Language = metaString(r.Metadata, index.MetaLanguage)
	out.SymbolType = metaString(r.Metadata, index.MetaType)
	out.Symbol = metaString(r.Metadata, index.MetaName)
	out.Scope = metaString(r.Metadata, index.MetaScope)
	out.LineStart = metaInt(r.Metadata, index.MetaLineStart)
	out.LineEnd = metaInt(r.Metadata, index.MetaLineEnd)
	return out
}

// splitDocumentID parses "<filePath>:<line>".
func splitDocumentID(id string) (string, int) {
	i := strings.LastIndexByte(id, ':')
	if i <= 0 {
		return id, 0
	}
	var line int
	if _, err := fmt.Sscanf(id[i+1:], "%d", &line); err != nil {
		return id, 0
	}
	return id[:i], line
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func metaInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// readSnippet returns lines [start, end] of path, at most maxSnippetLines.
func readSnippet(path string, start, end int) string {
	if path == "" || start <= 0 {
		return ""
	}
	if end < start {
		end = start
	}
	end = min(end, start+maxSnippetLines-1)

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && n <= end; n++ {
		if n >= start {
			lines = append(lines, scanner.Text())
		}
	}
	return strings.Join(lines, "\n")
}
