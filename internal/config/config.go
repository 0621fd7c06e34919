// Package config loads the retrieval core's tunables from a layered
// YAML configuration: hardcoded defaults, then a user-global file, then
// a project-local file, then environment variable overrides — the same
// precedence order the teacher's config loader uses, adapted to this
// engine's knobs (spec §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/graphmem/graphmem/internal/graphmodel"
)

// LimitsConfig mirrors graphmodel.Limits for YAML decoding.
type LimitsConfig struct {
	MaxObservationsPerEntity int `yaml:"max_observations_per_entity" json:"max_observations_per_entity"`
	MaxTagsPerEntity         int `yaml:"max_tags_per_entity" json:"max_tags_per_entity"`
}

// SearchConfig controls layer weighting, thresholds, and timeouts.
type SearchConfig struct {
	HybridWeights      map[string]float64 `yaml:"hybrid_weights" json:"hybrid_weights"`
	FuzzyThreshold     float64            `yaml:"fuzzy_threshold" json:"fuzzy_threshold"`
	LayerTimeout       time.Duration      `yaml:"layer_timeout" json:"layer_timeout"`
	DefaultTopK        int                `yaml:"default_top_k" json:"default_top_k"`
	AdequacyMinResults int                `yaml:"adequacy_min_results" json:"adequacy_min_results"`
	AdequacyMinScore   float64            `yaml:"adequacy_min_score" json:"adequacy_min_score"`
}

// BM25Config carries the saturation/length-normalization parameters.
type BM25Config struct {
	K1 float64 `yaml:"k1" json:"k1"`
	B  float64 `yaml:"b" json:"b"`
}

// EmbeddingConfig controls the embedder retry policy and cache sizing.
type EmbeddingConfig struct {
	ModelID         string        `yaml:"model_id" json:"model_id"`
	CacheSize       int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL        time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
	RetryInitial    time.Duration `yaml:"retry_initial_delay" json:"retry_initial_delay"`
	RetryMax        time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`
	// VectorStoreKind selects the vectorstore.Factory variant: "memory",
	// "quantized", or "persistent". Empty defaults to "memory".
	VectorStoreKind string `yaml:"vector_store_kind" json:"vector_store_kind"`
}

// QueryPlanConfig controls plan caching and invalidation.
type QueryPlanConfig struct {
	CacheSize          int     `yaml:"cache_size" json:"cache_size"`
	InvalidateFraction float64 `yaml:"invalidate_fraction" json:"invalidate_fraction"`
}

// IncrementalConfig controls the batch indexer.
type IncrementalConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// GraphMutexConfig bounds the async writer-mutex queue.
type GraphMutexConfig struct {
	MaxQueueLength int `yaml:"max_queue_length" json:"max_queue_length"`
}

// RefineConfig controls the reflection/relaxation loop.
type RefineConfig struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
}

// PathsConfig names where persisted state lives on disk.
type PathsConfig struct {
	DataDir          string `yaml:"data_dir" json:"data_dir"`
	LexicalIndexFile string `yaml:"lexical_index_file" json:"lexical_index_file"`
	VectorStoreFile  string `yaml:"vector_store_file" json:"vector_store_file"`
}

// LoggingConfig controls the telemetry setup.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// Config is the complete, nested configuration tree.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Limits      LimitsConfig      `yaml:"limits" json:"limits"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	BM25        BM25Config        `yaml:"bm25" json:"bm25"`
	Embedding   EmbeddingConfig   `yaml:"embedding" json:"embedding"`
	QueryPlan   QueryPlanConfig   `yaml:"query_plan" json:"query_plan"`
	Incremental IncrementalConfig `yaml:"incremental" json:"incremental"`
	GraphMutex  GraphMutexConfig  `yaml:"graph_mutex" json:"graph_mutex"`
	Refine      RefineConfig      `yaml:"refine" json:"refine"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// NewConfig returns the spec §6 default configuration.
func NewConfig() *Config {
	limits := graphmodel.DefaultLimits()
	return &Config{
		Version: 1,
		Limits: LimitsConfig{
			MaxObservationsPerEntity: limits.MaxObservationsPerEntity,
			MaxTagsPerEntity:         limits.MaxTagsPerEntity,
		},
		Search: SearchConfig{
			HybridWeights:      map[string]float64{"semantic": 0.4, "lexical": 0.4, "symbolic": 0.2},
			FuzzyThreshold:     0.6,
			LayerTimeout:       3 * time.Second,
			DefaultTopK:        10,
			AdequacyMinResults: 5,
			AdequacyMinScore:   0.75,
		},
		BM25: BM25Config{K1: 1.2, B: 0.75},
		Embedding: EmbeddingConfig{
			ModelID:         "mock-hash-embedder",
			CacheSize:       10000,
			CacheTTL:        0,
			RetryAttempts:   3,
			RetryInitial:    time.Second,
			RetryMax:        10 * time.Second,
			VectorStoreKind: "memory",
		},
		QueryPlan:   QueryPlanConfig{CacheSize: 500, InvalidateFraction: 0.005},
		Incremental: IncrementalConfig{BatchSize: 256},
		GraphMutex:  GraphMutexConfig{MaxQueueLength: 1000},
		Refine:      RefineConfig{MaxIterations: 3},
		Paths: PathsConfig{
			DataDir:          "./data",
			LexicalIndexFile: "lexical.ndjson",
			VectorStoreFile:  "vectors.gob",
		},
		Logging: LoggingConfig{Level: "info", WriteToStderr: true},
	}
}

// GetUserConfigPath follows the XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/graphmem/config.yaml, if set
//   - ~/.config/graphmem/config.yaml, otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "graphmem", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "graphmem", "config.yaml")
	}
	return filepath.Join(home, ".config", "graphmem", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user/global configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves configuration in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User/global config (~/.config/graphmem/config.yaml)
//  3. Project config (graphmem.yaml in dir)
//  4. Environment variable overrides (GRAPHMEM_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"graphmem.yaml", "graphmem.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays every non-zero field of other onto c, so a partial
// YAML file only overrides the keys it actually sets.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Limits.MaxObservationsPerEntity != 0 {
		c.Limits.MaxObservationsPerEntity = other.Limits.MaxObservationsPerEntity
	}
	if other.Limits.MaxTagsPerEntity != 0 {
		c.Limits.MaxTagsPerEntity = other.Limits.MaxTagsPerEntity
	}
	if other.Search.HybridWeights != nil {
		c.Search.HybridWeights = other.Search.HybridWeights
	}
	if other.Search.FuzzyThreshold != 0 {
		c.Search.FuzzyThreshold = other.Search.FuzzyThreshold
	}
	if other.Search.LayerTimeout != 0 {
		c.Search.LayerTimeout = other.Search.LayerTimeout
	}
	if other.Search.DefaultTopK != 0 {
		c.Search.DefaultTopK = other.Search.DefaultTopK
	}
	if other.Search.AdequacyMinResults != 0 {
		c.Search.AdequacyMinResults = other.Search.AdequacyMinResults
	}
	if other.Search.AdequacyMinScore != 0 {
		c.Search.AdequacyMinScore = other.Search.AdequacyMinScore
	}
	if other.BM25.K1 != 0 {
		c.BM25.K1 = other.BM25.K1
	}
	if other.BM25.B != 0 {
		c.BM25.B = other.BM25.B
	}
	if other.Embedding.ModelID != "" {
		c.Embedding.ModelID = other.Embedding.ModelID
	}
	if other.Embedding.CacheSize != 0 {
		c.Embedding.CacheSize = other.Embedding.CacheSize
	}
	if other.Embedding.CacheTTL != 0 {
		c.Embedding.CacheTTL = other.Embedding.CacheTTL
	}
	if other.Embedding.RetryAttempts != 0 {
		c.Embedding.RetryAttempts = other.Embedding.RetryAttempts
	}
	if other.Embedding.RetryInitial != 0 {
		c.Embedding.RetryInitial = other.Embedding.RetryInitial
	}
	if other.Embedding.RetryMax != 0 {
		c.Embedding.RetryMax = other.Embedding.RetryMax
	}
	if other.Embedding.VectorStoreKind != "" {
		c.Embedding.VectorStoreKind = other.Embedding.VectorStoreKind
	}
	if other.QueryPlan.CacheSize != 0 {
		c.QueryPlan.CacheSize = other.QueryPlan.CacheSize
	}
	if other.QueryPlan.InvalidateFraction != 0 {
		c.QueryPlan.InvalidateFraction = other.QueryPlan.InvalidateFraction
	}
	if other.Incremental.BatchSize != 0 {
		c.Incremental.BatchSize = other.Incremental.BatchSize
	}
	if other.GraphMutex.MaxQueueLength != 0 {
		c.GraphMutex.MaxQueueLength = other.GraphMutex.MaxQueueLength
	}
	if other.Refine.MaxIterations != 0 {
		c.Refine.MaxIterations = other.Refine.MaxIterations
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.LexicalIndexFile != "" {
		c.Paths.LexicalIndexFile = other.Paths.LexicalIndexFile
	}
	if other.Paths.VectorStoreFile != "" {
		c.Paths.VectorStoreFile = other.Paths.VectorStoreFile
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.WriteToStderr {
		c.Logging.WriteToStderr = true
	}
}

// applyEnvOverrides applies GRAPHMEM_* environment variables, which take
// precedence over every file-based source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GRAPHMEM_FUZZY_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil {
			c.Search.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("GRAPHMEM_DEFAULT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.DefaultTopK = n
		}
	}
	if v := os.Getenv("GRAPHMEM_EMBEDDING_MODEL_ID"); v != "" {
		c.Embedding.ModelID = v
	}
	if v := os.Getenv("GRAPHMEM_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("GRAPHMEM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// Validate checks that the resolved configuration is internally
// consistent before it is handed to the retrieval core.
func (c *Config) Validate() error {
	var sum float64
	for _, w := range c.Search.HybridWeights {
		if w < 0 {
			return fmt.Errorf("hybrid weight must not be negative")
		}
		sum += w
	}
	if len(c.Search.HybridWeights) > 0 && sum == 0 {
		return fmt.Errorf("hybrid weights must not all be zero")
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in [0,1], got %v", c.Search.FuzzyThreshold)
	}
	if c.BM25.K1 < 0 {
		return fmt.Errorf("bm25 k1 must not be negative")
	}
	if c.BM25.B < 0 || c.BM25.B > 1 {
		return fmt.Errorf("bm25 b must be in [0,1], got %v", c.BM25.B)
	}
	if c.QueryPlan.InvalidateFraction < 0 || c.QueryPlan.InvalidateFraction > 1 {
		return fmt.Errorf("query_plan.invalidate_fraction must be in [0,1]")
	}
	if c.Incremental.BatchSize <= 0 {
		return fmt.Errorf("incremental.batch_size must be positive")
	}
	if c.GraphMutex.MaxQueueLength <= 0 {
		return fmt.Errorf("graph_mutex.max_queue_length must be positive")
	}
	switch c.Embedding.VectorStoreKind {
	case "", "memory", "quantized", "persistent":
	default:
		return fmt.Errorf("embedding.vector_store_kind must be one of memory|quantized|persistent, got %q", c.Embedding.VectorStoreKind)
	}
	return nil
}

// WriteYAML writes cfg to path as YAML, creating parent directories as needed.
func (c *Config) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
