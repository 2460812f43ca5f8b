package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SQLiteBM25Index is a persistent inverted index scored with BM25.
// Postings live in inverted_index(term, document_id) and per-document
// token counts in document_stats(document_id).
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    BM25Config
	tokenizer *Tokenizer
	closed    bool
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*SQLiteBM25Index)(nil)

const sqliteSchemaVersion = 1

// validateSQLiteIntegrity runs PRAGMA integrity_check on an existing file.
// A missing file is valid.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open(SQLiteDriverName, path)
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteBM25Index opens (or creates) the index at path.
// An empty path creates an in-memory index.
func NewSQLiteBM25Index(path string, config BM25Config) (*SQLiteBM25Index, error) {
	if config.K1 == 0 && config.B == 0 {
		def := DefaultBM25Config()
		config.K1, config.B = def.K1, def.B
	}

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("lexical_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("lexical_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer, and :memory: stays one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	idx := &SQLiteBM25Index{
		db:        db,
		path:      path,
		config:    config,
		tokenizer: NewTokenizer(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

func (s *SQLiteBM25Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS inverted_index (
		term        TEXT    NOT NULL,
		document_id TEXT    NOT NULL,
		frequency   INTEGER NOT NULL,
		positions   TEXT    NOT NULL,
		PRIMARY KEY (term, document_id)
	);

	CREATE INDEX IF NOT EXISTS idx_inverted_index_document ON inverted_index(document_id);

	CREATE TABLE IF NOT EXISTS document_stats (
		document_id TEXT    PRIMARY KEY,
		length      INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, sqliteSchemaVersion)
	return err
}

// IndexDocument replaces the postings and length for id in one transaction.
func (s *SQLiteBM25Index) IndexDocument(ctx context.Context, id, text string) error {
	tokens := s.tokenizer.Tokenize(text)
	postings := termPositions(tokens)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("lexical index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocumentTx(ctx, tx, id); err != nil {
		return err
	}

	insertTerm, err := tx.PrepareContext(ctx,
		`INSERT INTO inverted_index (term, document_id, frequency, positions) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare term statement: %w", err)
	}
	defer insertTerm.Close()

	for term, positions := range postings {
		encoded, err := json.Marshal(positions)
		if err != nil {
			return fmt.Errorf("failed to encode positions: %w", err)
		}
		if _, err := insertTerm.ExecContext(ctx, term, id, len(positions), string(encoded)); err != nil {
			return fmt.Errorf("failed to index term %q for %s: %w", term, id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO document_stats (document_id, length) VALUES (?, ?)`, id, len(tokens)); err != nil {
		return fmt.Errorf("failed to write stats for %s: %w", id, err)
	}

	return tx.Commit()
}

// DeleteDocument removes postings and stats for id in one transaction.
func (s *SQLiteBM25Index) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("lexical index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteDocumentTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteDocumentTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM inverted_index WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete postings for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_stats WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete stats for %s: %w", id, err)
	}
	return nil
}

// Search scores every document containing a query term and returns the
// topK best. Equal scores are ordered by document id.
func (s *SQLiteBM25Index) Search(ctx context.Context, query string, topK int) ([]*LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, notReady("lexical index")
	}

	terms := uniqueTerms(s.tokenizer.Tokenize(query))
	if len(terms) == 0 || topK <= 0 {
		return []*LexicalResult{}, nil
	}

	n, avgLen, err := s.corpusStats(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return []*LexicalResult{}, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		SELECT i.document_id, i.frequency, d.length
		FROM inverted_index i
		JOIN document_stats d ON d.document_id = i.document_id
		WHERE i.term = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare search statement: %w", err)
	}
	defer stmt.Close()

	scores := make(map[string]float64)
	for _, term := range terms {
		postings, err := queryPostings(ctx, stmt, term)
		if err != nil {
			return nil, err
		}
		if len(postings) == 0 {
			continue
		}

		idf := bm25IDF(n, len(postings))
		for _, p := range postings {
			scores[p.docID] += bm25TermScore(idf, p.tf, p.docLen, avgLen, s.config.K1, s.config.B)
		}
	}

	return rankLexical(scores, topK), nil
}

type posting struct {
	docID  string
	tf     int
	docLen int
}

func queryPostings(ctx context.Context, stmt *sql.Stmt, term string) ([]posting, error) {
	rows, err := stmt.QueryContext(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var postings []posting
	for rows.Next() {
		var p posting
		if err := rows.Scan(&p.docID, &p.tf, &p.docLen); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *SQLiteBM25Index) corpusStats(ctx context.Context) (int, float64, error) {
	var (
		n   int
		avg float64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(length), 0) FROM document_stats`).Scan(&n, &avg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read document stats: %w", err)
	}
	return n, avg, nil
}

// ClearIndex deletes every row from both tables.
func (s *SQLiteBM25Index) ClearIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("lexical index")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM inverted_index`); err != nil {
		return fmt.Errorf("failed to clear inverted index: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_stats`); err != nil {
		return fmt.Errorf("failed to clear document stats: %w", err)
	}
	return tx.Commit()
}

// Stats reports totals over the live documents.
func (s *SQLiteBM25Index) Stats(ctx context.Context) (*LexicalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, notReady("lexical index")
	}

	n, avg, err := s.corpusStats(ctx)
	if err != nil {
		return nil, err
	}

	var terms int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT term) FROM inverted_index`).Scan(&terms); err != nil {
		return nil, fmt.Errorf("failed to count terms: %w", err)
	}

	return &LexicalStats{
		TotalDocuments:        n,
		AverageDocumentLength: avg,
		TotalTerms:            terms,
	}, nil
}

// Close checkpoints the WAL and closes the database. Safe to call twice.
func (s *SQLiteBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// bm25IDF is ln((N - df + 0.5)/(df + 0.5) + 1).
func bm25IDF(n, df int) float64 {
	return math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
}

// bm25TermScore is IDF * tf*(k1+1) / (tf + k1*(1 - b + b*docLen/avgLen)).
func bm25TermScore(idf float64, tf, docLen int, avgLen, k1, b float64) float64 {
	ratio := 1.0
	if avgLen > 0 {
		ratio = float64(docLen) / avgLen
	}
	f := float64(tf)
	return idf * (f * (k1 + 1)) / (f + k1*(1-b+b*ratio))
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func rankLexical(scores map[string]float64, topK int) []*LexicalResult {
	results := make([]*LexicalResult, 0, len(scores))
	for id, score := range scores {
		results = append(results, &LexicalResult{DocumentID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
