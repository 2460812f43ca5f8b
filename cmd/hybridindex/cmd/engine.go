package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/Aman-CERP/hybridindex/internal/config"
	"github.com/Aman-CERP/hybridindex/internal/embed"
	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/index"
	"github.com/Aman-CERP/hybridindex/internal/logging"
	"github.com/Aman-CERP/hybridindex/internal/scanner"
	"github.com/Aman-CERP/hybridindex/internal/search"
	"github.com/Aman-CERP/hybridindex/internal/store"
)

// vectorsDirName holds the saved HNSW collections inside the data dir.
const vectorsDirName = "vectors"

// project is a resolved project directory and its configuration.
type project struct {
	Root    string
	ID      string
	DataDir string
	Config  *config.Config
}

// resolveProject finds the project root for dir (or --project, or the
// working directory) and loads its configuration.
func resolveProject(dir string) (*project, error) {
	if dir == "" {
		dir = projectPath
	}
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, herrors.New(herrors.ErrCodeFileNotFound,
			fmt.Sprintf("project directory not found: %s", abs), err)
	}

	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := cfg.MergeFile(configPath); err != nil {
			return nil, err
		}
	}

	return &project{
		Root:    root,
		ID:      projectIDFor(root),
		DataDir: cfg.DataDir(root),
		Config:  cfg,
	}, nil
}

var nonIDChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// projectIDFor derives a stable project id from the root directory name.
func projectIDFor(root string) string {
	id := nonIDChars.ReplaceAllString(strings.ToLower(filepath.Base(root)), "-")
	id = strings.Trim(id, "-.")
	if id == "" {
		return "project"
	}
	return id
}

// hasIndex reports whether the data dir holds a lexical index.
func (p *project) hasIndex() bool {
	base := store.LexicalIndexBasePath(p.DataDir)
	for _, ext := range []string{".db", ".bleve"} {
		if _, err := os.Stat(base + ext); err == nil {
			return true
		}
	}
	return false
}

func (p *project) requireIndex() error {
	if p.hasIndex() {
		return nil
	}
	return herrors.New(herrors.ErrCodeStorageNotReady,
		fmt.Sprintf("no index found for %s", p.Root), nil).
		WithSuggestion("Run 'hybridindex index' first")
}

func (p *project) vectorsDir() string {
	return filepath.Join(p.DataDir, vectorsDirName)
}

// projectOptions turns the indexer config into IndexProject options.
func (p *project) projectOptions() index.ProjectOptions {
	workers := p.Config.MaxWorkers()
	return index.ProjectOptions{
		ExcludePatterns: p.Config.Indexer.ExcludePatterns,
		Languages:       p.Config.Indexer.Languages,
		MaxWorkers:      &workers,
	}
}

// engine owns every store of one project's data dir. Only one process may
// hold it at a time.
type engine struct {
	*project

	lock     *embed.FileLock
	lexical  store.LexicalIndex
	vectors  *store.HNSWStore
	files    *store.BoltFileMap
	embedder embed.Embedder
	scanner  *scanner.Scanner
	indexer  *index.Indexer
	fusion   *search.RankFusion
	logger   *slog.Logger

	mu        sync.RWMutex
	observers []func(index.Event)
}

// openEngine locks the data dir and opens the lexical index, vector store,
// file map and embedder, then wires the indexer and rank fusion.
func openEngine(p *project, logger *slog.Logger) (_ *engine, err error) {
	cfg := p.Config
	logger = logging.OrDefault(logger)
	e := &engine{project: p, logger: logger}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return nil, herrors.StorageError("failed to create data directory", err)
	}

	e.lock = embed.NewFileLock(p.DataDir)
	if err := e.lock.TryLock(); err != nil {
		return nil, err
	}

	lexical, err := store.NewLexicalIndex(store.LexicalIndexBasePath(p.DataDir),
		strings.ToLower(cfg.BM25.Backend),
		store.BM25Config{K1: cfg.BM25.K1, B: cfg.BM25.B, StopWords: store.DefaultStopWords})
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeStorageFailed, "failed to open lexical index", err)
	}
	e.lexical = lexical

	e.vectors = store.NewHNSWStore(store.HNSWConfig{M: cfg.Vectors.HNSW.M, EfSearch: cfg.Vectors.HNSW.EfSearch})
	if err := e.vectors.Load(p.vectorsDir()); err != nil {
		return nil, herrors.New(herrors.ErrCodeCorruptIndex, "failed to load vector store", err).
			WithSuggestion("Run 'hybridindex clear --all' and index again")
	}

	e.files, err = store.NewBoltFileMap(store.FileMapPath(p.DataDir))
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeStorageFailed, "failed to open file map", err)
	}

	e.embedder, err = embed.NewEmbedder(cfg.Embeddings.Provider, cfg.Embeddings.Dimensions, cfg.Embeddings.CacheSize)
	if err != nil {
		return nil, err
	}

	e.scanner, err = scanner.New(logger)
	if err != nil {
		return nil, herrors.InternalError("failed to create scanner", err)
	}
	// Patterns and languages arrive per run through ProjectOptions.
	base := p.scanOptions()
	base.ExcludePatterns, base.Languages = nil, nil
	adapter := index.NewScannerAdapter(e.scanner, base)

	e.indexer, err = index.NewIndexer(index.Dependencies{
		Lexical:    e.lexical,
		Vectors:    e.vectors,
		Embedder:   e.embedder,
		Scanner:    adapter,
		FileMap:    e.files,
		Collection: cfg.Vectors.Collection,
		Logger:     logger,
		OnEvent:    e.emit,
	})
	if err != nil {
		return nil, err
	}

	e.fusion, err = search.NewRankFusion(e.lexical, e.vectors, cfg.Search.Alpha, search.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// scanOptions are the scanner settings shared by IndexProject and the
// watcher filter.
func (p *project) scanOptions() scanner.Options {
	return scanner.Options{
		ExcludePatterns:  p.Config.Indexer.ExcludePatterns,
		Languages:        p.Config.Indexer.Languages,
		MaxFileSize:      p.Config.Indexer.MaxFileSize,
		RespectGitignore: true,
		SkipGenerated:    true,
	}
}

// Subscribe adds an indexer event observer.
func (e *engine) Subscribe(fn func(index.Event)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

func (e *engine) emit(ev index.Event) {
	e.mu.RLock()
	observers := e.observers
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// SaveVectors persists the HNSW collections.
func (e *engine) SaveVectors() error {
	if err := e.vectors.Save(e.vectorsDir()); err != nil {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to save vector store", err)
	}
	return nil
}

// Close releases every store and the data dir lock.
func (e *engine) Close() error {
	var errs []error
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	if e.files != nil {
		errs = append(errs, e.files.Close())
	}
	if e.vectors != nil {
		errs = append(errs, e.vectors.Close())
	}
	if e.lexical != nil {
		errs = append(errs, e.lexical.Close())
	}
	if e.lock != nil && e.lock.IsLocked() {
		errs = append(errs, e.lock.Unlock())
	}
	return errors.Join(errs...)
}

// dataSizes returns the on-disk sizes of the lexical index, the vector
// store and the file map.
func (p *project) dataSizes() (lexical, vectors, fileMap int64) {
	base := store.LexicalIndexBasePath(p.DataDir)
	lexical = pathSize(base+".db") + pathSize(base+".bleve")
	return lexical, pathSize(p.vectorsDir()), pathSize(store.FileMapPath(p.DataDir))
}

// pathSize sums file sizes under path. Missing paths count as zero.
func pathSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if info, err := d.Info(); err == nil && !d.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}
