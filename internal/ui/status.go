package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/hybridindex/internal/index"
)

// StatusInfo describes one project's index for the status command.
type StatusInfo struct {
	Stats index.IndexStats `json:"stats"`

	// On-disk sizes in bytes.
	LexicalSize int64 `json:"lexical_size"`
	VectorSize  int64 `json:"vector_size"`
	FileMapSize int64 `json:"file_map_size"`

	Backend    string `json:"backend"`
	Embedder   string `json:"embedder"`
	Dimensions int    `json:"dimensions"`

	// Interrupted is set when a previous index run did not finish.
	Interrupted bool `json:"interrupted"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	s := info.Stats
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+s.ProjectID))

	_, _ = fmt.Fprintf(r.out, "  Status:       %s\n", r.renderStatus(string(s.Status)))
	if s.Error != "" {
		_, _ = fmt.Fprintf(r.out, "  Error:        %s\n", r.styles.Error.Render(s.Error))
	}
	if info.Interrupted {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render("previous index run was interrupted; run index again"))
	}
	_, _ = fmt.Fprintf(r.out, "  Root:         %s\n", s.RootPath)
	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", s.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Symbols:      %d\n", s.TotalSymbols)
	_, _ = fmt.Fprintf(r.out, "  Vectors:      %d\n", s.TotalVectors)
	if !s.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(s.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Lexical (%s): %s\n", info.Backend, FormatBytes(info.LexicalSize))
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s\n", FormatBytes(info.VectorSize))
	_, _ = fmt.Fprintf(r.out, "    File map: %s\n", FormatBytes(info.FileMapSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Embedder: %s (%d dims)\n", info.Embedder, info.Dimensions)
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case string(index.StatusIndexed):
		return r.styles.Success.Render(status)
	case string(index.StatusIndexing):
		return r.styles.Warning.Render(status)
	case string(index.StatusError):
		return r.styles.Error.Render(status)
	case "":
		return r.styles.Dim.Render("not indexed")
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		if mins := int(diff.Minutes()); mins != 1 {
			return fmt.Sprintf("%d minutes ago", mins)
		}
		return "1 minute ago"
	case diff < 24*time.Hour:
		if hours := int(diff.Hours()); hours != 1 {
			return fmt.Sprintf("%d hours ago", hours)
		}
		return "1 hour ago"
	case diff < 7*24*time.Hour:
		if days := int(diff.Hours() / 24); days != 1 {
			return fmt.Sprintf("%d days ago", days)
		}
		return "1 day ago"
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
