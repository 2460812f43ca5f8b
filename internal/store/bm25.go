package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// LexicalTokenizerName is the registered name of the splitting tokenizer.
	LexicalTokenizerName = "hybridindex_tokenizer"

	// LexicalStopFilterName is the registered name of the stop-word filter.
	LexicalStopFilterName = "hybridindex_stop"

	// LexicalAnalyzerName is the analyzer combining both.
	LexicalAnalyzerName = "hybridindex_analyzer"

	bleveContentField = "content"
	bleveLengthField  = "length"
	bleveClearBatch   = 1000
)

func init() {
	_ = registry.RegisterTokenizer(LexicalTokenizerName, lexicalTokenizerConstructor)
	_ = registry.RegisterTokenFilter(LexicalStopFilterName, lexicalStopFilterConstructor)
}

// BleveBM25Index is the alternate lexical backend built on Bleve.
// It tokenizes exactly like SQLiteBM25Index but scores with Bleve's own
// similarity, so absolute scores differ between backends.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveBM25Index)(nil)

// bleveDocument is the stored shape of a document.
type bleveDocument struct {
	Content string  `json:"content"`
	Length  float64 `json:"length"`
}

// validateBleveIntegrity checks that an existing index directory has
// readable metadata. A missing directory is valid.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// NewBleveBM25Index opens or creates a Bleve index at path.
// An empty path creates an in-memory index.
func NewBleveBM25Index(path string) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("bleve index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveBM25Index{index: idx, path: path}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(LexicalAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     LexicalTokenizerName,
		"token_filters": []string{LexicalStopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = LexicalAnalyzerName

	docMapping := bleve.NewDocumentMapping()
	content := bleve.NewTextFieldMapping()
	content.Analyzer = LexicalAnalyzerName
	content.Store = false
	docMapping.AddFieldMappingsAt(bleveContentField, content)

	length := bleve.NewNumericFieldMapping()
	length.Store = true
	length.Index = false
	docMapping.AddFieldMappingsAt(bleveLengthField, length)

	indexMapping.DefaultMapping = docMapping
	return indexMapping, nil
}

// IndexDocument replaces id. Bleve's Index call is an upsert.
func (b *BleveBM25Index) IndexDocument(ctx context.Context, id, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return notReady("lexical index")
	}

	doc := bleveDocument{Content: text, Length: float64(len(Tokenize(text)))}
	if err := b.index.Index(id, doc); err != nil {
		return fmt.Errorf("failed to index document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument removes id; missing ids are ignored by Bleve.
func (b *BleveBM25Index) DeleteDocument(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return notReady("lexical index")
	}

	if err := b.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// Search runs a disjunctive match query over the content field.
func (b *BleveBM25Index) Search(ctx context.Context, query string, topK int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, notReady("lexical index")
	}

	if len(Tokenize(query)) == 0 || topK <= 0 {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField(bleveContentField)

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = topK

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{DocumentID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// ClearIndex deletes all documents in batches.
func (b *BleveBM25Index) ClearIndex(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return notReady("lexical index")
	}

	for {
		req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
		req.Size = bleveClearBatch
		result, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		if len(result.Hits) == 0 {
			return nil
		}

		batch := b.index.NewBatch()
		for _, hit := range result.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
	}
}

// Stats reports the document count and average stored length.
func (b *BleveBM25Index) Stats(ctx context.Context) (*LexicalStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, notReady("lexical index")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	stats := &LexicalStats{TotalDocuments: int(count)}
	if count == 0 {
		return stats, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	req.Fields = []string{bleveLengthField}
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to read lengths: %w", err)
	}

	var total float64
	for _, hit := range result.Hits {
		if v, ok := hit.Fields[bleveLengthField].(float64); ok {
			total += v
		}
	}
	stats.AverageDocumentLength = total / float64(count)
	return stats, nil
}

// Close closes the index. Safe to call twice.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func lexicalTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveLexicalTokenizer{}, nil
}

// bleveLexicalTokenizer adapts Split to Bleve's token stream, keeping byte
// offsets into the lowercased input.
type bleveLexicalTokenizer struct{}

func (t *bleveLexicalTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := strings.ToLower(string(input))
	tokens := Split(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	offset := 0
	for i, token := range tokens {
		start := strings.Index(text[offset:], token) + offset
		end := start + len(token)
		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
		offset = end
	}
	return result
}

func lexicalStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveStopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type bleveStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
