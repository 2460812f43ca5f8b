package index

import (
	"context"

	"github.com/Aman-CERP/hybridindex/internal/scanner"
)

// ScannerAdapter exposes a scanner.Scanner as a FileScanner.
type ScannerAdapter struct {
	scanner *scanner.Scanner
	base    scanner.Options
}

var _ FileScanner = (*ScannerAdapter)(nil)

// NewScannerAdapter wraps s. base supplies the options a ScanFilter does
// not carry (gitignore handling, size limit, workers); filter patterns are
// appended to base.ExcludePatterns.
func NewScannerAdapter(s *scanner.Scanner, base scanner.Options) *ScannerAdapter {
	return &ScannerAdapter{scanner: s, base: base}
}

// Scan returns the absolute paths of indexable files under rootPath.
func (a *ScannerAdapter) Scan(ctx context.Context, rootPath string, filter ScanFilter) ([]string, error) {
	opts := a.base
	opts.ExcludePatterns = append(append([]string(nil), a.base.ExcludePatterns...), filter.ExcludePatterns...)
	if len(filter.Languages) > 0 {
		opts.Languages = filter.Languages
	}

	files, err := a.scanner.Scan(ctx, rootPath, opts)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.AbsPath
	}
	return paths, nil
}
