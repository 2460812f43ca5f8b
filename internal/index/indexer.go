package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/hybridindex/internal/chunk"
	"github.com/Aman-CERP/hybridindex/internal/embed"
	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
	"github.com/Aman-CERP/hybridindex/internal/store"
)

// maxWorkerLimit caps IndexProject parallelism.
const maxWorkerLimit = 4

// Dependencies wires an Indexer. Lexical, Vectors, Embedder and Scanner are
// required. The Indexer does not close any of them.
type Dependencies struct {
	Lexical   store.LexicalIndex
	Vectors   store.VectorStore
	Embedder  embed.Embedder
	Extractor chunk.SymbolExtractor
	Markdown  chunk.MarkdownParser
	Scanner   FileScanner

	// FileMap records document ids per file. Nil keeps it in memory.
	FileMap store.FileMap

	// Collection is the vector collection (default DefaultCollection).
	Collection string

	// LanguageForPath resolves a file's language (default chunk.LanguageForPath).
	LanguageForPath func(path string) string

	Logger  *slog.Logger
	OnEvent func(Event)
}

// Indexer indexes projects and individual files into the lexical index and
// the vector store.
type Indexer struct {
	lexical    store.LexicalIndex
	vectors    store.VectorStore
	embedder   embed.Embedder
	extractor  chunk.SymbolExtractor
	markdown   chunk.MarkdownParser
	scanner    FileScanner
	files      store.FileMap
	collection string
	languageOf func(string) string
	logger     *slog.Logger
	onEvent    func(Event)

	mu    sync.RWMutex
	stats map[string]*IndexStats
}

// NewIndexer creates an Indexer and loads persisted project stats from the
// file map.
func NewIndexer(deps Dependencies) (*Indexer, error) {
	if deps.Lexical == nil || deps.Vectors == nil || deps.Embedder == nil || deps.Scanner == nil {
		return nil, herrors.New(herrors.ErrCodeInvalidInput,
			"indexer requires a lexical index, vector store, embedder and scanner", nil)
	}

	ix := &Indexer{
		lexical:    deps.Lexical,
		vectors:    deps.Vectors,
		embedder:   deps.Embedder,
		extractor:  deps.Extractor,
		markdown:   deps.Markdown,
		scanner:    deps.Scanner,
		files:      deps.FileMap,
		collection: deps.Collection,
		languageOf: deps.LanguageForPath,
		logger:     deps.Logger,
		onEvent:    deps.OnEvent,
		stats:      make(map[string]*IndexStats),
	}
	if ix.extractor == nil {
		ix.extractor = chunk.NewTreeSitterExtractor(chunk.DefaultRegistry())
	}
	if ix.markdown == nil {
		ix.markdown = chunk.NewMarkdownParser()
	}
	if ix.files == nil {
		ix.files = store.NewMemoryFileMap()
	}
	if ix.collection == "" {
		ix.collection = DefaultCollection
	}
	if ix.languageOf == nil {
		ix.languageOf = chunk.LanguageForPath
	}
	if ix.logger == nil {
		ix.logger = slog.Default()
	}

	err := ix.files.EachProjectStats(func(projectID string, data []byte) error {
		var s IndexStats
		if err := json.Unmarshal(data, &s); err != nil {
			ix.logger.Warn("discarding unreadable project stats",
				slog.String("project_id", projectID),
				slog.String("error", err.Error()))
			return nil
		}
		// An interrupted run is not resumable.
		if s.Status == StatusIndexing {
			s.Status = StatusError
			s.Error = "indexing interrupted"
		}
		ix.stats[projectID] = &s
		return nil
	})
	if err != nil {
		return nil, herrors.StorageError("failed to load project stats", err)
	}
	return ix, nil
}

// Collection returns the vector collection name.
func (ix *Indexer) Collection() string { return ix.collection }

// MaxWorkers resolves the per-chunk parallelism: opt or NumCPU-1, clamped
// to [1, 4].
func MaxWorkers(opt *int) int {
	n := runtime.NumCPU() - 1
	if opt != nil {
		n = *opt
	}
	return max(1, min(n, maxWorkerLimit))
}

// IndexProject scans rootPath and indexes every file in chunks of
// MaxWorkers files, each chunk in parallel. Files indexed earlier that the
// scan no longer returns are removed. Only a scan failure (or
// cancellation) is returned as an error; per-file failures are collected
// in the result.
func (ix *Indexer) IndexProject(ctx context.Context, projectID, rootPath string, opts ProjectOptions) (*ProjectIndexResult, error) {
	start := time.Now()
	ix.updateStats(projectID, func(s *IndexStats) {
		s.RootPath = rootPath
		s.Status = StatusIndexing
		s.Error = ""
	})

	files, err := ix.scanner.Scan(ctx, rootPath, ScanFilter{
		ExcludePatterns: opts.ExcludePatterns,
		Languages:       opts.Languages,
	})
	if err != nil {
		ix.failProject(projectID, err)
		return nil, err
	}

	ix.emit(Event{Kind: EventScanCompleted, ProjectID: projectID, Files: len(files)})

	result := &ProjectIndexResult{Success: true}
	result.RemovedFiles = ix.pruneMissing(ctx, projectID, files)

	if len(files) == 0 {
		ix.finishProject(projectID)
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := ix.ensureCollection(ctx); err != nil {
		ix.failProject(projectID, err)
		return nil, err
	}

	workers := MaxWorkers(opts.MaxWorkers)
	ix.logger.Info("indexing project",
		slog.String("project_id", projectID),
		slog.String("root", rootPath),
		slog.Int("files", len(files)),
		slog.Int("workers", workers))

	for lo := 0; lo < len(files); lo += workers {
		batch := files[lo:min(lo+workers, len(files))]
		results := make([]*FileIndexResult, len(batch))

		var g errgroup.Group
		for i, path := range batch {
			g.Go(func() error {
				res, err := ix.updateFile(ctx, path, projectID, false)
				if err != nil {
					res = &FileIndexResult{FilePath: path, Error: err}
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()
		ix.refreshStats(projectID)

		for _, res := range results {
			result.add(res)
		}

		if err := ctx.Err(); err != nil {
			ix.failProject(projectID, err)
			return nil, err
		}
	}

	ix.finishProject(projectID)
	result.Duration = time.Since(start)

	ix.logger.Info("project indexed",
		slog.String("project_id", projectID),
		slog.Int("indexed", result.IndexedFiles),
		slog.Int("failed", result.FailedFiles),
		slog.Int("symbols", result.TotalSymbols),
		slog.Duration("duration", result.Duration))

	return result, nil
}

func (r *ProjectIndexResult) add(res *FileIndexResult) {
	if !res.Success {
		r.FailedFiles++
		r.Errors = append(r.Errors, FileError{FilePath: res.FilePath, Error: errorText(res.Error)})
		return
	}
	r.IndexedFiles++
	r.TotalSymbols += res.Symbols
	r.TotalVectors += res.Vectors
	if res.HasErrors {
		r.Errors = append(r.Errors, FileError{FilePath: res.FilePath, Error: errorText(res.Error)})
	}
}

func errorText(err error) string {
	if err == nil {
		return "extraction reported errors"
	}
	return err.Error()
}

// pruneMissing deletes files recorded for the project that the scan did
// not return.
func (ix *Indexer) pruneMissing(ctx context.Context, projectID string, scanned []string) int {
	known, err := ix.files.ProjectFiles(projectID)
	if err != nil {
		ix.logger.Warn("failed to read file map", slog.String("project_id", projectID), slog.String("error", err.Error()))
		return 0
	}
	if len(known) == 0 {
		return 0
	}

	keep := make(map[string]struct{}, len(scanned))
	for _, p := range scanned {
		keep[p] = struct{}{}
	}

	stale := make([]string, 0)
	for p := range known {
		if _, ok := keep[p]; !ok {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)

	removed := 0
	for _, p := range stale {
		if res := ix.deleteFile(ctx, p, projectID, false); res.Success {
			removed++
		}
	}
	if removed > 0 {
		ix.refreshStats(projectID)
	}
	return removed
}

// ensureCollection creates the vector collection if needed.
func (ix *Indexer) ensureCollection(ctx context.Context) error {
	err := ix.vectors.CreateCollection(ctx, ix.collection, ix.embedder.Dimensions())
	if err != nil && !errors.Is(err, store.ErrCollectionExists) {
		return err
	}
	return nil
}

// IndexFile indexes one file. Markdown yields headings and code blocks,
// recognized code yields symbols, anything else is an unsupported-type
// failure result. The returned error is set only when the file could not
// be read or the stores rejected its documents.
func (ix *Indexer) IndexFile(ctx context.Context, filePath, projectID string) (*FileIndexResult, error) {
	return ix.indexFile(ctx, filePath, projectID, true)
}

// indexFile is IndexFile. refresh recomputes the project totals after a
// success; project runs pass false and refresh once per chunk.
func (ix *Indexer) indexFile(ctx context.Context, filePath, projectID string, refresh bool) (*FileIndexResult, error) {
	res := &FileIndexResult{FilePath: filePath}
	ix.emit(Event{Kind: EventFileStarted, ProjectID: projectID, FilePath: filePath})

	language := ix.languageOf(filePath)
	if language == "" {
		res.Error = herrors.New(herrors.ErrCodeUnsupportedFileType, "unsupported file type", nil).
			WithDetail("file", filePath)
		ix.emit(Event{Kind: EventFileError, ProjectID: projectID, FilePath: filePath, Err: res.Error})
		return res, nil
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		err = ix.readError(filePath, err)
		res.Error = err
		ix.emit(Event{Kind: EventFileError, ProjectID: projectID, FilePath: filePath, Err: err})
		return res, err
	}

	src := newFileSource(projectID, filePath, language, content)
	var docs []Document
	if language == chunk.LanguageMarkdown {
		docs = src.markdownDocuments(ix.markdown.Parse(content))
	} else {
		extracted, err := ix.extractor.ExtractSymbols(ctx, content, language)
		switch {
		case err != nil:
			res.HasErrors = true
			res.Error = err
			ix.logger.Warn("symbol extraction failed",
				slog.String("file_path", filePath),
				slog.String("error", err.Error()))
		case extracted.HasError:
			res.HasErrors = true
			res.Error = herrors.New(herrors.ErrCodeExtractFailed, "source has syntax errors", nil).
				WithDetail("file", filePath)
		}
		if extracted != nil {
			for _, sym := range extracted.Symbols {
				docs = append(docs, src.symbolDocument(sym))
			}
		}
	}
	docs = dedupe(docs)

	if err := ix.storeDocuments(ctx, projectID, filePath, docs); err != nil {
		res.Error = err
		ix.emit(Event{Kind: EventFileError, ProjectID: projectID, FilePath: filePath, Err: err})
		return res, err
	}

	res.Success = true
	res.Symbols = len(docs)
	res.Vectors = len(docs)
	if refresh {
		ix.refreshStats(projectID)
	}
	ix.emit(Event{Kind: EventFileCompleted, ProjectID: projectID, FilePath: filePath, Symbols: len(docs)})
	return res, nil
}

func (ix *Indexer) readError(filePath string, err error) error {
	code := herrors.ErrCodeIndexFailed
	switch {
	case errors.Is(err, os.ErrNotExist):
		code = herrors.ErrCodeFileNotFound
	case errors.Is(err, os.ErrPermission):
		code = herrors.ErrCodeFilePermission
	}
	return herrors.New(code, "failed to read file", err).WithDetail("file", filePath)
}

// storeDocuments embeds docs in one batch, records their ids and writes
// them to both stores. Ids are recorded before the first store write, so a
// write that fails halfway leaves nothing a later delete cannot find. Ids
// already recorded for the file are kept.
func (ix *Indexer) storeDocuments(ctx context.Context, projectID, filePath string, docs []Document) error {
	previous, err := ix.files.FileDocuments(projectID, filePath)
	if err != nil {
		return herrors.StorageError("failed to read file map", err)
	}
	record := func() error {
		if err := ix.files.SetFileDocuments(projectID, filePath, mergeIDs(previous, docs)); err != nil {
			return herrors.StorageError("failed to record file documents", err)
		}
		return nil
	}

	if len(docs) == 0 {
		return record()
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return herrors.New(herrors.ErrCodeEmbeddingFailed, "failed to embed documents", err).
			WithDetail("file", filePath)
	}
	if len(vectors) != len(docs) {
		return herrors.New(herrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d documents", len(vectors), len(docs)), nil)
	}

	if err := ix.ensureCollection(ctx); err != nil {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to create vector collection", err)
	}
	records := make([]store.VectorRecord, len(docs))
	for i := range docs {
		docs[i].Vector = vectors[i]
		records[i] = store.VectorRecord{ID: docs[i].ID, Vector: vectors[i], Metadata: docs[i].Metadata}
	}
	if err := record(); err != nil {
		return err
	}
	if err := ix.vectors.Upsert(ctx, ix.collection, records); err != nil {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to upsert vectors", err).
			WithDetail("file", filePath)
	}
	for _, d := range docs {
		if err := ix.lexical.IndexDocument(ctx, d.ID, d.Text); err != nil {
			return herrors.New(herrors.ErrCodeStorageFailed, "failed to index document", err).
				WithDetail("id", d.ID)
		}
	}
	return nil
}

func mergeIDs(previous []string, docs []Document) []string {
	ids := make([]string, 0, len(previous)+len(docs))
	seen := make(map[string]struct{}, cap(ids))
	for _, id := range previous {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, d := range docs {
		if _, ok := seen[d.ID]; !ok {
			seen[d.ID] = struct{}{}
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// UpdateFile removes the file's existing documents and indexes it again.
// A file that no longer exists is only removed.
func (ix *Indexer) UpdateFile(ctx context.Context, filePath, projectID string) (*FileIndexResult, error) {
	return ix.updateFile(ctx, filePath, projectID, true)
}

func (ix *Indexer) updateFile(ctx context.Context, filePath, projectID string, refresh bool) (*FileIndexResult, error) {
	del := ix.deleteFile(ctx, filePath, projectID, refresh)
	if !del.Success {
		ix.emit(Event{Kind: EventFileError, ProjectID: projectID, FilePath: filePath, Err: del.Error})
		return &FileIndexResult{FilePath: filePath, Error: del.Error}, del.Error
	}

	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		ix.logger.Debug("file gone, removed from index", slog.String("file_path", filePath))
		return &FileIndexResult{FilePath: filePath, Success: true}, nil
	}

	return ix.indexFile(ctx, filePath, projectID, refresh)
}

// DeleteFile removes every document recorded for filePath. It never
// returns an error; failures are carried by the result.
func (ix *Indexer) DeleteFile(ctx context.Context, filePath, projectID string) *DeleteResult {
	return ix.deleteFile(ctx, filePath, projectID, true)
}

func (ix *Indexer) deleteFile(ctx context.Context, filePath, projectID string, refresh bool) *DeleteResult {
	res := &DeleteResult{FilePath: filePath}

	ids, err := ix.files.FileDocuments(projectID, filePath)
	if err != nil {
		res.Error = herrors.StorageError("failed to read file map", err)
		return res
	}
	if err := ix.removeDocuments(ctx, ids); err != nil {
		res.Error = err
		return res
	}
	if ids != nil {
		if err := ix.files.RemoveFile(projectID, filePath); err != nil {
			res.Error = herrors.StorageError("failed to update file map", err)
			return res
		}
		if refresh {
			ix.refreshStats(projectID)
		}
	}

	res.Success = true
	res.DeletedDocuments = len(ids)
	return res
}

// IndexedFiles returns the sorted paths that have documents in a project.
func (ix *Indexer) IndexedFiles(projectID string) ([]string, error) {
	known, err := ix.files.ProjectFiles(projectID)
	if err != nil {
		return nil, herrors.StorageError("failed to read file map", err)
	}
	paths := make([]string, 0, len(known))
	for p := range known {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (ix *Indexer) removeDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := ix.vectors.Delete(ctx, ix.collection, ids)
	if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to delete vectors", err)
	}
	for _, id := range ids {
		if err := ix.lexical.DeleteDocument(ctx, id); err != nil {
			return herrors.New(herrors.ErrCodeStorageFailed, "failed to delete document", err).
				WithDetail("id", id)
		}
	}
	return nil
}

// IndexStats returns the stats of a project, zeroed for unknown projects.
func (ix *Indexer) IndexStats(projectID string) IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if s, ok := ix.stats[projectID]; ok {
		return *s
	}
	return IndexStats{ProjectID: projectID}
}

// AllIndexStats returns the stats of every known project, ordered by id.
func (ix *Indexer) AllIndexStats() []IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]IndexStats, 0, len(ix.stats))
	for _, s := range ix.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// ClearIndex removes every document of a project and forgets its stats.
func (ix *Indexer) ClearIndex(ctx context.Context, projectID string) error {
	files, err := ix.files.ProjectFiles(projectID)
	if err != nil {
		return herrors.StorageError("failed to read file map", err)
	}
	for path, ids := range files {
		if err := ix.removeDocuments(ctx, ids); err != nil {
			return fmt.Errorf("clear %s: %w", path, err)
		}
	}
	if err := ix.files.RemoveProject(projectID); err != nil {
		return herrors.StorageError("failed to update file map", err)
	}

	ix.mu.Lock()
	delete(ix.stats, projectID)
	ix.mu.Unlock()

	ix.logger.Info("project index cleared",
		slog.String("project_id", projectID),
		slog.Int("files", len(files)))
	return nil
}

// ClearAllIndexes empties the lexical index, drops and recreates the
// vector collection, and forgets every project.
func (ix *Indexer) ClearAllIndexes(ctx context.Context) error {
	if err := ix.lexical.ClearIndex(ctx); err != nil {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to clear lexical index", err)
	}
	err := ix.vectors.DeleteCollection(ctx, ix.collection)
	if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return herrors.New(herrors.ErrCodeStorageFailed, "failed to drop vector collection", err)
	}
	if err := ix.ensureCollection(ctx); err != nil {
		return err
	}
	if err := ix.files.Clear(); err != nil {
		return herrors.StorageError("failed to clear file map", err)
	}

	ix.mu.Lock()
	ix.stats = make(map[string]*IndexStats)
	ix.mu.Unlock()

	ix.logger.Info("all indexes cleared")
	return nil
}

func (ix *Indexer) emit(e Event) {
	if ix.onEvent == nil {
		return
	}
	e.Time = time.Now()
	ix.onEvent(e)
}

// updateStats mutates a project's stats and persists them.
func (ix *Indexer) updateStats(projectID string, fn func(*IndexStats)) {
	ix.mu.Lock()
	s, ok := ix.stats[projectID]
	if !ok {
		s = &IndexStats{ProjectID: projectID}
		ix.stats[projectID] = s
	}
	fn(s)
	snapshot := *s
	ix.mu.Unlock()

	if err := ix.files.SaveProjectStats(projectID, snapshot); err != nil {
		ix.logger.Warn("failed to persist project stats",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()))
	}
}

// refreshStats recomputes file and document totals from the file map.
func (ix *Indexer) refreshStats(projectID string) {
	files, err := ix.files.ProjectFiles(projectID)
	if err != nil {
		ix.logger.Warn("failed to read file map", slog.String("project_id", projectID), slog.String("error", err.Error()))
		return
	}
	docs := 0
	for _, ids := range files {
		docs += len(ids)
	}
	ix.updateStats(projectID, func(s *IndexStats) {
		s.TotalFiles = len(files)
		s.TotalSymbols = docs
		s.TotalVectors = docs
		if s.Status == "" {
			s.Status = StatusIndexed
		}
		if s.Status == StatusIndexed {
			s.LastIndexed = time.Now()
		}
	})
}

func (ix *Indexer) finishProject(projectID string) {
	ix.updateStats(projectID, func(s *IndexStats) {
		s.Status = StatusIndexed
		s.Error = ""
	})
	ix.refreshStats(projectID)
}

func (ix *Indexer) failProject(projectID string, err error) {
	ix.logger.Error("project indexing failed",
		slog.String("project_id", projectID),
		slog.String("error", err.Error()))
	ix.updateStats(projectID, func(s *IndexStats) {
		s.Status = StatusError
		s.Error = err.Error()
	})
}
