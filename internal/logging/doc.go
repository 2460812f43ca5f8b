// Package logging configures structured slog output for hybridindex.
// Logs are JSON lines written to a size-rotated file under ~/.hybridindex/logs,
// optionally mirrored to stderr. Stdio server mode never writes to stderr or stdout.
package logging
