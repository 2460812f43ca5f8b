package errors

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	he, ok := as(err)
	if !ok {
		he = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", he.Message)
	if he.Suggestion != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", he.Suggestion)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", he.Code)
	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error for tool responses.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	he, ok := as(err)
	if !ok {
		he = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       he.Code,
		Message:    he.Message,
		Category:   string(he.Category),
		Severity:   string(he.Severity),
		Details:    he.Details,
		Suggestion: he.Suggestion,
		Retryable:  he.Retryable,
	}
	if he.Cause != nil {
		je.Cause = he.Cause.Error()
	}
	return json.Marshal(je)
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []slog.Attr {
	if err == nil {
		return nil
	}

	he, ok := as(err)
	if !ok {
		return []slog.Attr{slog.String("error", err.Error())}
	}

	attrs := []slog.Attr{
		slog.String("error_code", he.Code),
		slog.String("error", he.Message),
		slog.String("category", string(he.Category)),
		slog.String("severity", string(he.Severity)),
	}
	if he.Cause != nil {
		attrs = append(attrs, slog.String("cause", he.Cause.Error()))
	}

	keys := make([]string, 0, len(he.Details))
	for k := range he.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String("detail_"+k, he.Details[k]))
	}
	return attrs
}
