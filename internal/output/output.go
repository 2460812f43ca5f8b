// Package output formats CLI messages and search results.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/search"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints ranked results with their score breakdown and the
// location stored in the metadata.
func (w *Writer) SearchResults(query string, results []*search.HybridResult) {
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}

	w.Statusf("🔍", "%d results for %q", len(results), query)
	w.Newline()
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %.3f (lexical %.3f, vector %.3f)\n",
			i+1, r.ID, r.HybridScore, r.LexicalScore, r.VectorScore)
		if line := describe(r.Metadata); line != "" {
			_, _ = fmt.Fprintf(w.out, "    %s\n", line)
		}
	}
}

// describe renders "type name in scope (language)" from result metadata.
func describe(meta map[string]any) string {
	if meta == nil {
		return ""
	}

	var b strings.Builder
	if typ, ok := meta[index.MetaType].(string); ok && typ != "" {
		b.WriteString(typ)
	}
	if name, ok := meta[index.MetaName].(string); ok && name != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(name)
	}
	if scope, ok := meta[index.MetaScope].(string); ok && scope != "" {
		b.WriteString(" in ")
		b.WriteString(scope)
	}
	if lang, ok := meta[index.MetaLanguage].(string); ok && lang != "" {
		fmt.Fprintf(&b, " (%s)", lang)
	}
	return strings.TrimSpace(b.String())
}
