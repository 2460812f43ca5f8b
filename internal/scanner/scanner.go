package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridindex/internal/chunk"
	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/gitignore"
)

// gitignoreCacheSize bounds the number of per-directory matchers kept.
const gitignoreCacheSize = 1000

// Scanner walks project trees. One Scanner may run many scans at once.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	logger         *slog.Logger
}

// New creates a Scanner. A nil logger uses slog.Default().
func New(logger *slog.Logger) (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{gitignoreCache: cache, logger: logger}, nil
}

// Scan returns the indexable files under root sorted by path. It fails only
// when root cannot be read or ctx ends; unreadable entries are skipped.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeScanFailed, "failed to resolve root", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeScanFailed, "failed to stat root", err).
			WithDetail("root", absRoot)
	}
	if !info.IsDir() {
		return nil, herrors.New(herrors.ErrCodeScanFailed, "root is not a directory", nil).
			WithDetail("root", absRoot)
	}

	filter := s.NewFilter(absRoot, opts)

	var candidates []FileInfo
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == absRoot {
				return err
			}
			s.logger.Debug("scan_entry_skipped", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if filter.excluded(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		language, ok := filter.accepts(rel)
		if !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() > filter.maxSize {
			return nil
		}
		candidates = append(candidates, FileInfo{
			Path:     rel,
			AbsPath:  path,
			Size:     fi.Size(),
			ModTime:  fi.ModTime(),
			Language: language,
		})
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, herrors.New(herrors.ErrCodeScanFailed, "failed to walk project", walkErr).
			WithDetail("root", absRoot)
	}

	files, err := s.inspect(ctx, candidates, opts)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// inspect reads the head of each candidate to drop binary and, optionally,
// generated files.
func (s *Scanner) inspect(ctx context.Context, candidates []FileInfo, opts Options) ([]FileInfo, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	keep := make([]bool, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			head, err := readHead(candidates[i].AbsPath, 1024)
			if err != nil || bytes.IndexByte(head, 0) >= 0 {
				return nil
			}
			candidates[i].IsGenerated = isGenerated(head)
			keep[i] = !(opts.SkipGenerated && candidates[i].IsGenerated)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(candidates))
	for i, f := range candidates {
		if keep[i] {
			files = append(files, f)
		}
	}
	return files, nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

func isGenerated(head []byte) bool {
	for _, marker := range generatedMarkers {
		if bytes.Contains(head, []byte(marker)) {
			return true
		}
	}
	return false
}

// Filter decides whether a path under a root is indexable without touching
// file contents. The watcher uses it to drop events the scanner would skip.
type Filter struct {
	scanner   *Scanner
	root      string
	excludes  *gitignore.Matcher
	gitignore bool
	languages map[string]bool
	maxSize   int64
}

// NewFilter builds the path filter for root and opts.
func (s *Scanner) NewFilter(root string, opts Options) *Filter {
	excludes := gitignore.NewFromPatterns(DefaultExcludePatterns...)
	for _, p := range sensitivePatterns {
		excludes.AddPattern(p)
	}
	for _, p := range opts.ExcludePatterns {
		excludes.AddPattern(p)
	}

	var languages map[string]bool
	if len(opts.Languages) > 0 {
		languages = make(map[string]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			languages[strings.ToLower(l)] = true
		}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Filter{
		scanner:   s,
		root:      root,
		excludes:  excludes,
		gitignore: opts.RespectGitignore,
		languages: languages,
		maxSize:   maxSize,
	}
}

// Accepts reports whether an absolute or root-relative path would be
// indexed, and its language.
func (f *Filter) Accepts(path string) (string, bool) {
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(f.root, path)
		if err != nil || strings.HasPrefix(r, "..") {
			return "", false
		}
		rel = r
	}
	return f.accepts(filepath.ToSlash(rel))
}

func (f *Filter) accepts(rel string) (string, bool) {
	if f.excluded(rel, false) {
		return "", false
	}
	language := chunk.LanguageForPath(rel)
	if language == "" {
		return "", false
	}
	if f.languages != nil && !f.languages[language] {
		return "", false
	}
	return language, true
}

func (f *Filter) excluded(rel string, isDir bool) bool {
	if f.excludes.Match(rel, isDir) {
		return true
	}
	return f.gitignore && f.scanner.isGitignored(f.root, rel, isDir)
}

// isGitignored checks rel against the .gitignore of the root and of every
// directory between the root and rel.
func (s *Scanner) isGitignored(root, rel string, isDir bool) bool {
	dirs := []string{""}
	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		dirs = append(dirs, strings.Join(parts[:i], "/"))
	}

	for _, base := range dirs {
		m := s.matcherFor(root, base)
		if m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the cached matcher for <root>/<base>/.gitignore, or nil
// when that file does not exist.
func (s *Scanner) matcherFor(root, base string) *gitignore.Matcher {
	dir := filepath.Join(root, filepath.FromSlash(base))
	if m, ok := s.gitignoreCache.Get(dir); ok {
		return m
	}

	m := gitignore.New()
	if err := m.AddFromFile(filepath.Join(dir, ".gitignore"), base); err != nil {
		m = nil
	}
	s.gitignoreCache.Add(dir, m)
	return m
}

// InvalidateGitignoreCache drops cached matchers so edited .gitignore files
// are re-read.
func (s *Scanner) InvalidateGitignoreCache() {
	s.gitignoreCache.Purge()
}
