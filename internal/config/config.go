// Package config loads hybridindex configuration from defaults, YAML files and
// HYBRIDINDEX_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	herrors "github.com/Aman-CERP/hybridindex/internal/errors"
)

// Project config file names, in lookup order.
const (
	ProjectConfigFile    = ".hybridindex.yaml"
	ProjectConfigFileAlt = ".hybridindex.yml"
	envPrefix            = "HYBRIDINDEX_"
)

// Config is the complete hybridindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	BM25       BM25Config       `yaml:"bm25" json:"bm25"`
	Vectors    VectorsConfig    `yaml:"vectors" json:"vectors"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexer    IndexerConfig    `yaml:"indexer" json:"indexer"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SearchConfig controls hybrid ranking.
type SearchConfig struct {
	// Alpha weights the lexical score; 1-Alpha weights the vector score.
	Alpha float64 `yaml:"alpha" json:"alpha"`
	TopK  int     `yaml:"top_k" json:"top_k"`
}

// BM25Config selects the lexical backend and its parameters.
type BM25Config struct {
	// Backend is "sqlite" (default) or "bleve".
	Backend string  `yaml:"backend" json:"backend"`
	K1      float64 `yaml:"k1" json:"k1"`
	B       float64 `yaml:"b" json:"b"`
}

// VectorsConfig configures the in-process vector store.
type VectorsConfig struct {
	Collection string     `yaml:"collection" json:"collection"`
	HNSW       HNSWConfig `yaml:"hnsw" json:"hnsw"`
}

// HNSWConfig holds graph parameters.
type HNSWConfig struct {
	M        int `yaml:"m" json:"m"`
	EfSearch int `yaml:"ef_search" json:"ef_search"`
}

// EmbeddingsConfig configures the embedder.
type EmbeddingsConfig struct {
	// Provider is currently only "static".
	Provider   string `yaml:"provider" json:"provider"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// IndexerConfig controls project indexing.
type IndexerConfig struct {
	// MaxWorkers of 0 means cpu-1, always clamped to [1,4].
	MaxWorkers      int      `yaml:"max_workers" json:"max_workers"`
	ExcludePatterns []string `yaml:"exclude_patterns" json:"exclude_patterns"`
	Languages       []string `yaml:"languages" json:"languages"`
	MaxFileSize     int64    `yaml:"max_file_size" json:"max_file_size"`
}

// QueueConfig controls the background update queue.
type QueueConfig struct {
	ProcessingInterval time.Duration `yaml:"processing_interval" json:"processing_interval"`
}

// WatcherConfig controls file watching.
type WatcherConfig struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`
	DebounceWindow time.Duration `yaml:"debounce_window" json:"debounce_window"`
}

// PathsConfig holds on-disk locations.
type PathsConfig struct {
	// DataDir is relative to the project root unless absolute.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Alpha: 0.5,
			TopK:  10,
		},
		BM25: BM25Config{
			Backend: "sqlite",
			K1:      1.5,
			B:       0.75,
		},
		Vectors: VectorsConfig{
			Collection: "code",
			HNSW: HNSWConfig{
				M:        16,
				EfSearch: 64,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 256,
			CacheSize:  10000,
		},
		Indexer: IndexerConfig{
			MaxWorkers:  0,
			MaxFileSize: 1 << 20,
		},
		Queue: QueueConfig{
			ProcessingInterval: 100 * time.Millisecond,
		},
		Watcher: WatcherConfig{
			Enabled:        true,
			DebounceWindow: 200 * time.Millisecond,
		},
		Paths: PathsConfig{
			DataDir: ".hybridindex",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// GetUserConfigPath returns the user configuration path following XDG:
// $XDG_CONFIG_HOME/hybridindex/config.yaml or ~/.config/hybridindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hybridindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hybridindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "hybridindex", "config.yaml")
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/hybridindex/config.yaml)
//  3. Project config (.hybridindex.yaml in dir)
//  4. Environment variables (HYBRIDINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values, so keys absent from
// the file keep their previous value and explicit zeros are honoured.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return herrors.New(herrors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return herrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// MergeFile applies an explicit config file on top of c. Environment
// variables keep precedence over it.
func (c *Config) MergeFile(path string) error {
	if err := c.loadYAML(path); err != nil {
		return err
	}
	if err := c.applyEnvOverrides(); err != nil {
		return err
	}
	return c.Validate()
}

// applyEnvOverrides applies HYBRIDINDEX_* environment variables.
func (c *Config) applyEnvOverrides() error {
	floats := map[string]*float64{
		"ALPHA":   &c.Search.Alpha,
		"BM25_K1": &c.BM25.K1,
		"BM25_B":  &c.BM25.B,
	}
	for key, dst := range floats {
		if v, ok := lookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = f
		}
	}

	ints := map[string]*int{
		"TOP_K":       &c.Search.TopK,
		"MAX_WORKERS": &c.Indexer.MaxWorkers,
		"CACHE_SIZE":  &c.Embeddings.CacheSize,
	}
	for key, dst := range ints {
		if v, ok := lookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"QUEUE_INTERVAL":  &c.Queue.ProcessingInterval,
		"DEBOUNCE_WINDOW": &c.Watcher.DebounceWindow,
	}
	for key, dst := range durations {
		if v, ok := lookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return envError(key, v, err)
			}
			*dst = d
		}
	}

	if v, ok := lookupEnv("BM25_BACKEND"); ok {
		c.BM25.Backend = strings.ToLower(v)
	}
	if v, ok := lookupEnv("DATA_DIR"); ok {
		c.Paths.DataDir = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookupEnv("WATCH"); ok {
		c.Watcher.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	return nil
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envError(key, value string, err error) error {
	return herrors.ConfigError(fmt.Sprintf("invalid %s%s=%q", envPrefix, key, value), err)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if math.IsNaN(c.Search.Alpha) || c.Search.Alpha < 0 || c.Search.Alpha > 1 {
		return herrors.New(herrors.ErrCodeInvalidAlpha,
			fmt.Sprintf("search.alpha must be between 0 and 1, got %v", c.Search.Alpha), nil)
	}
	if c.Search.TopK <= 0 {
		return herrors.ConfigError(fmt.Sprintf("search.top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.BM25.K1 < 0 {
		return herrors.ConfigError(fmt.Sprintf("bm25.k1 must be non-negative, got %v", c.BM25.K1), nil)
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return herrors.ConfigError(fmt.Sprintf("bm25.b must be between 0 and 1, got %v", c.BM25.B), nil)
	}
	switch strings.ToLower(c.BM25.Backend) {
	case "sqlite", "bleve":
	default:
		return herrors.ConfigError(fmt.Sprintf("bm25.backend must be 'sqlite' or 'bleve', got %q", c.BM25.Backend), nil)
	}
	if c.Vectors.Collection == "" {
		return herrors.ConfigError("vectors.collection must not be empty", nil)
	}
	if !strings.EqualFold(c.Embeddings.Provider, "static") {
		return herrors.ConfigError(fmt.Sprintf("embeddings.provider must be 'static', got %q", c.Embeddings.Provider), nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return herrors.ConfigError(fmt.Sprintf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Indexer.MaxWorkers < 0 {
		return herrors.ConfigError(fmt.Sprintf("indexer.max_workers must be non-negative, got %d", c.Indexer.MaxWorkers), nil)
	}
	if c.Queue.ProcessingInterval < 0 {
		return herrors.ConfigError("queue.processing_interval must be non-negative", nil)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return herrors.ConfigError(fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level), nil)
	}
	return nil
}

// MaxWorkers resolves the configured worker count for this machine,
// clamped to [1,4].
func (c *Config) MaxWorkers() int {
	n := c.Indexer.MaxWorkers
	if n == 0 {
		n = runtime.NumCPU() - 1
	}
	return min(max(n, 1), 4)
}

// DataDir returns the absolute data directory for the project at root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Paths.DataDir) {
		return c.Paths.DataDir
	}
	return filepath.Join(root, c.Paths.DataDir)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for .git or a project config
// file. It returns startDir (absolute) when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) ||
			fileExists(filepath.Join(current, ProjectConfigFile)) ||
			fileExists(filepath.Join(current, ProjectConfigFileAlt)) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
