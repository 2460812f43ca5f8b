package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWConfig holds graph parameters shared by every collection.
type HNSWConfig struct {
	// M is the max connections per layer (default: 16).
	M int
	// EfSearch is the query-time search width (default: 20).
	EfSearch int
}

// HNSWStore is an in-process VectorStore. Each collection is a coder/hnsw
// graph keyed by uint64 with a string id map and per-record metadata.
// Deletes are lazy: the graph node is orphaned and skipped at query time.
type HNSWStore struct {
	mu          sync.RWMutex
	config      HNSWConfig
	collections map[string]*hnswCollection
	closed      bool
}

var (
	_ VectorStore    = (*HNSWStore)(nil)
	_ MetadataReader = (*HNSWStore)(nil)
)

type hnswCollection struct {
	graph     *hnsw.Graph[uint64]
	dimension int
	idMap     map[string]uint64
	keyMap    map[uint64]string
	metadata  map[string]map[string]any
	nextKey   uint64
}

// hnswMetadata is the gob-encoded sidecar written next to each graph export.
type hnswMetadata struct {
	Dimension int
	IDMap     map[string]uint64
	NextKey   uint64
	Metadata  map[string]map[string]any
}

// NewHNSWStore creates an empty store.
func NewHNSWStore(cfg HNSWConfig) *HNSWStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWStore{
		config:      cfg,
		collections: make(map[string]*hnswCollection),
	}
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25
	return graph
}

func (s *HNSWStore) newCollection(dimension int) *hnswCollection {
	return &hnswCollection{
		graph:     s.newGraph(),
		dimension: dimension,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
		metadata:  make(map[string]map[string]any),
	}
}

// CreateCollection registers a new empty collection.
func (s *HNSWStore) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d for collection %s", dimension, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("vector store")
	}
	if _, ok := s.collections[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionExists)
	}
	s.collections[name] = s.newCollection(dimension)
	return nil
}

// Upsert adds records, replacing any with the same id.
func (s *HNSWStore) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	for _, r := range records {
		if len(r.Vector) != c.dimension {
			return ErrDimensionMismatch{Expected: c.dimension, Got: len(r.Vector)}
		}
	}

	for _, r := range records {
		if oldKey, exists := c.idMap[r.ID]; exists {
			delete(c.keyMap, oldKey)
		}

		key := c.nextKey
		c.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		c.graph.Add(hnsw.MakeNode(key, vec))
		c.idMap[r.ID] = key
		c.keyMap[key] = r.ID
		c.metadata[r.ID] = copyMetadata(r.Metadata)
	}
	return nil
}

// Query returns the topK most similar live records matching filter.
// Lazily deleted nodes and filtered records are skipped, so the graph is
// searched wider than topK.
func (s *HNSWStore) Query(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.dimension {
		return nil, ErrDimensionMismatch{Expected: c.dimension, Got: len(vector)}
	}
	if topK <= 0 || len(c.idMap) == 0 {
		return []*VectorResult{}, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)
	normalizeVectorInPlace(query)

	k := topK + (c.graph.Len() - len(c.idMap))
	if len(filter) > 0 {
		k = c.graph.Len()
	}
	k = min(k, c.graph.Len())

	nodes := c.graph.Search(query, k)

	results := make([]*VectorResult, 0, topK)
	for _, node := range nodes {
		id, live := c.keyMap[node.Key]
		if !live {
			continue
		}
		meta := c.metadata[id]
		if !metadataMatches(meta, filter) {
			continue
		}
		results = append(results, &VectorResult{
			ID:       id,
			Score:    distanceToScore(c.graph.Distance(query, node.Value)),
			Metadata: copyMetadata(meta),
		})
		if len(results) == topK {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// Metadata returns copies of the metadata of the live ids in collection.
func (s *HNSWStore) Metadata(ctx context.Context, collection string, ids []string) (map[string]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(ids))
	for _, id := range ids {
		if _, live := c.idMap[id]; !live {
			continue
		}
		out[id] = copyMetadata(c.metadata[id])
	}
	return out, nil
}

// Delete orphans ids in collection.
func (s *HNSWStore) Delete(ctx context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if key, exists := c.idMap[id]; exists {
			delete(c.keyMap, key)
			delete(c.idMap, id)
			delete(c.metadata, id)
		}
	}
	return nil
}

// DeleteCollection drops a collection.
func (s *HNSWStore) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("vector store")
	}
	if _, ok := s.collections[name]; !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	delete(s.collections, name)
	return nil
}

// Count returns the number of live records in collection, or 0 if missing.
func (s *HNSWStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.collections[collection]; ok {
		return len(c.idMap)
	}
	return 0
}

// HNSWStats reports graph health for a collection.
type HNSWStats struct {
	ValidIDs   int // live records
	GraphNodes int // nodes in the graph, including orphans
	Orphans    int
}

// Stats returns graph statistics for collection.
func (s *HNSWStore) Stats(collection string) HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return HNSWStats{}
	}
	return HNSWStats{
		ValidIDs:   len(c.idMap),
		GraphNodes: c.graph.Len(),
		Orphans:    c.graph.Len() - len(c.idMap),
	}
}

// collection looks up name; callers hold s.mu.
func (s *HNSWStore) collection(name string) (*hnswCollection, error) {
	if s.closed {
		return nil, notReady("vector store")
	}
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return c, nil
}

// Save writes every collection into dir as <name>.hnsw plus <name>.hnsw.meta.
// Orphaned nodes are compacted away by rebuilding the graph first.
func (s *HNSWStore) Save(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("vector store")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	for name, c := range s.collections {
		if c.graph.Len() != len(c.idMap) {
			s.compact(c)
		}
		if err := saveCollection(filepath.Join(dir, name+".hnsw"), c); err != nil {
			return fmt.Errorf("save collection %s: %w", name, err)
		}
	}
	return nil
}

// compact rebuilds c's graph from live nodes only.
func (s *HNSWStore) compact(c *hnswCollection) {
	live := make([]hnsw.Node[uint64], 0, len(c.idMap))
	for _, key := range c.idMap {
		if vec, ok := c.graph.Lookup(key); ok {
			live = append(live, hnsw.MakeNode(key, vec))
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Key < live[j].Key })

	c.graph = s.newGraph()
	if len(live) > 0 {
		c.graph.Add(live...)
	}
}

func saveCollection(path string, c *hnswCollection) error {
	if err := writeAtomic(path, func(f *os.File) error {
		if c.graph.Len() == 0 {
			return nil
		}
		return c.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{
		Dimension: c.dimension,
		IDMap:     c.idMap,
		NextKey:   c.nextKey,
		Metadata:  c.metadata,
	}
	return writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the in-memory collections with those saved in dir.
// A missing dir loads nothing.
func (s *HNSWStore) Load(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return notReady("vector store")
	}

	metas, err := filepath.Glob(filepath.Join(dir, "*.hnsw.meta"))
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	loaded := make(map[string]*hnswCollection, len(metas))
	for _, metaPath := range metas {
		graphPath := strings.TrimSuffix(metaPath, ".meta")
		name := strings.TrimSuffix(filepath.Base(graphPath), ".hnsw")

		c, err := s.loadCollection(graphPath)
		if err != nil {
			slog.Warn("vector_collection_load_failed",
				slog.String("collection", name),
				slog.String("error", err.Error()))
			return fmt.Errorf("load collection %s: %w", name, err)
		}
		loaded[name] = c
	}

	s.collections = loaded
	return nil
}

func (s *HNSWStore) loadCollection(graphPath string) (*hnswCollection, error) {
	mf, err := os.Open(graphPath + ".meta")
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer mf.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode hnsw metadata: %w", err)
	}

	c := s.newCollection(meta.Dimension)
	c.nextKey = meta.NextKey
	if meta.IDMap != nil {
		c.idMap = meta.IDMap
	}
	if meta.Metadata != nil {
		c.metadata = meta.Metadata
	}
	for id, key := range c.idMap {
		c.keyMap[key] = id
	}

	if len(c.idMap) == 0 {
		return c, nil
	}

	gf, err := os.Open(graphPath)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer gf.Close()

	if err := c.graph.Import(bufio.NewReader(gf)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return c, nil
}

// Close drops all collections. Safe to call twice.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.collections = nil
	return nil
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are left alone.
func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// distanceToScore maps cosine distance [0,2] to similarity [0,1].
func distanceToScore(d float32) float64 {
	score := 1 - float64(d)/2
	return math.Max(0, math.Min(1, score))
}

// metadataMatches reports whether meta has every key/value in filter.
// Values are compared by their printed form so 3 and int64(3) match.
func metadataMatches(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(got, want) && fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
