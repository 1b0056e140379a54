// Package config loads and validates hindex configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/hindex/config.yaml)
//  3. Project config (.hindex.yaml in the working directory)
//  4. Environment variables (SOURCE_DIR, QDRANT_URL, ... and HINDEX_*)
//
// Command-line flags are overlaid by the CLI layer on top of the loaded
// config, so they win over everything here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// Config is the complete hindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Source     SourceConfig     `yaml:"source" json:"source"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Qdrant     QdrantConfig     `yaml:"qdrant" json:"qdrant"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Query      QueryConfig      `yaml:"query" json:"query"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SourceConfig configures which documents get indexed.
type SourceConfig struct {
	// Dir is the root directory scanned for source documents.
	Dir string `yaml:"dir" json:"dir"`
	// Exclude lists glob patterns skipped during the scan.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig bounds chunk sizes.
type ChunkingConfig struct {
	// MaxTokens is the per-chunk token budget.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// OverlapTokens is the minimum token overlap carried between
	// consecutive chunks of one paragraph.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
}

// EmbeddingsConfig configures the embeddings provider.
type EmbeddingsConfig struct {
	// Model is the embeddings model name, e.g. text-embedding-3-large.
	Model string `yaml:"model" json:"model"`
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Dimensions overrides the model dimension table. Required for models
	// the table does not know; must agree with the table for known models.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is how many chunk texts go into one embeddings request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the embedding LRU capacity in entries. 0 disables it.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// APIKey comes from OPENAI_API_KEY only. Never written to config files.
	APIKey string `yaml:"-" json:"-"`
}

// QdrantConfig configures the vector store connection.
type QdrantConfig struct {
	// URL is the Qdrant REST URL; gRPC is derived from it.
	URL string `yaml:"url" json:"url"`
	// Collection is the target collection name.
	Collection string `yaml:"collection" json:"collection"`

	// APIKey comes from QDRANT_API_KEY only. Never written to config files.
	APIKey string `yaml:"-" json:"-"`
}

// IndexConfig configures the index runner.
type IndexConfig struct {
	// Workers is the number of documents processed concurrently.
	Workers int `yaml:"workers" json:"workers"`
	// SkipUnchanged skips files whose content hash matches the manifest.
	SkipUnchanged bool `yaml:"skip_unchanged" json:"skip_unchanged"`
	// StateDir holds the manifest database, run lock, and debug logs.
	StateDir string `yaml:"state_dir" json:"state_dir"`
	// WatchDebounce is the coalescing window for watch mode, e.g. "500ms".
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// QueryConfig configures retrieval defaults.
type QueryConfig struct {
	TopK int `yaml:"top_k" json:"top_k"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig configures the slog setup.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// File is an optional log file path. Empty means stderr only.
	File string `yaml:"file" json:"file"`
}

// defaultExcludePatterns are always skipped during source scans.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.DS_Store",
}

// NewConfig returns a Config with the stock defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Source: SourceConfig{
			Dir:     filepath.Join("data", "source"),
			Exclude: defaultExcludePatterns,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     800,
			OverlapTokens: 100,
		},
		Embeddings: EmbeddingsConfig{
			Model:     "text-embedding-3-large",
			BaseURL:   "https://api.openai.com/v1",
			BatchSize: 64,
			CacheSize: 2048,
		},
		Qdrant: QdrantConfig{
			URL:        "http://localhost:6333",
			Collection: "flowise_reels",
		},
		Index: IndexConfig{
			Workers:       4,
			SkipUnchanged: false,
			StateDir:      defaultStateDir(),
			WatchDebounce: "500ms",
		},
		Query: QueryConfig{
			TopK: 8,
		},
		Server: ServerConfig{
			Addr: ":8392",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultStateDir returns ~/.hindex, or a temp fallback when the home
// directory cannot be resolved.
func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hindex")
	}
	return filepath.Join(home, ".hindex")
}

// ManifestPath is the sqlite manifest location inside the state dir.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Index.StateDir, "manifest.db")
}

// LockPath is the index run lock location inside the state dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Index.StateDir, "index.lock")
}

// DebounceWindow parses Index.WatchDebounce, falling back to 500ms on any
// unusable value.
func (c *Config) DebounceWindow() time.Duration {
	d, err := time.ParseDuration(c.Index.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetUserConfigPath returns the user-level configuration path following the
// XDG Base Directory convention:
//   - $XDG_CONFIG_HOME/hindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/hindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "hindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "hindex", "config.yaml")
}

// Load builds the effective configuration for a project directory.
// A .env file in dir is loaded first (existing environment wins), then the
// layering described in the package doc runs.
func Load(dir string) (*Config, error) {
	loadDotenv(dir)

	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadProjectFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile builds the configuration from defaults plus one explicit file
// (the --config path), then environment overrides.
func LoadFile(path string) (*Config, error) {
	loadDotenv(filepath.Dir(path))

	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotenv loads dir/.env into the process environment when present.
// Variables already set in the environment are left alone, matching the
// dotenv behavior the ingestion scripts relied on.
func loadDotenv(dir string) {
	path := filepath.Join(dir, ".env")
	if fileExists(path) {
		_ = godotenv.Load(path)
	}
}

// loadProjectFile merges .hindex.yaml or .hindex.yml from dir when present.
func (c *Config) loadProjectFile(dir string) error {
	for _, name := range []string{".hindex.yaml", ".hindex.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML reads a YAML file and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return hxerrors.ConfigError(fmt.Sprintf("cannot read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return hxerrors.ConfigError(fmt.Sprintf("cannot parse config file %s", path), err).
			WithSuggestion("check the YAML syntax; see configs/hindex.example.yaml for the expected shape")
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Zero values cannot be
// distinguished from unset ones in YAML, so an explicit zero must come from
// an env var or flag instead.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Source.Dir != "" {
		c.Source.Dir = other.Source.Dir
	}
	if len(other.Source.Exclude) > 0 {
		c.Source.Exclude = append(c.Source.Exclude, other.Source.Exclude...)
	}

	if other.Chunking.MaxTokens != 0 {
		c.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		c.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}

	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Qdrant.URL != "" {
		c.Qdrant.URL = other.Qdrant.URL
	}
	if other.Qdrant.Collection != "" {
		c.Qdrant.Collection = other.Qdrant.Collection
	}

	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}
	if other.Index.SkipUnchanged {
		c.Index.SkipUnchanged = true
	}
	if other.Index.StateDir != "" {
		c.Index.StateDir = other.Index.StateDir
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	if other.Query.TopK != 0 {
		c.Query.TopK = other.Query.TopK
	}

	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies environment variables. The unprefixed names are
// the contract the deployed pipeline already uses; HINDEX_* covers the rest.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOURCE_DIR"); v != "" {
		c.Source.Dir = v
	}
	if v := os.Getenv("QDRANT_URL"); v != "" {
		c.Qdrant.URL = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		c.Qdrant.Collection = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		c.Qdrant.APIKey = v
	}
	if v := os.Getenv("EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("MAX_TOKENS_PER_CHUNK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.MaxTokens = n
		}
	}
	// Explicit zero is meaningful here: it turns overlap off.
	if v := os.Getenv("OVERLAP_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.OverlapTokens = n
		}
	}
	if v := os.Getenv("HINDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Workers = n
		}
	}
	if v := os.Getenv("HINDEX_STATE_DIR"); v != "" {
		c.Index.StateDir = v
	}
	if v := os.Getenv("HINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks structural bounds. Model-to-dimension resolution happens in
// the embeddings layer, which owns the dimension table.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return hxerrors.ConfigError(
			fmt.Sprintf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens), nil)
	}
	if c.Chunking.OverlapTokens < 0 {
		return hxerrors.ConfigError(
			fmt.Sprintf("chunking.overlap_tokens must be non-negative, got %d", c.Chunking.OverlapTokens), nil)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return hxerrors.ConfigError(
			fmt.Sprintf("chunking.overlap_tokens (%d) must be smaller than chunking.max_tokens (%d)",
				c.Chunking.OverlapTokens, c.Chunking.MaxTokens), nil).
			WithSuggestion("a common split is max_tokens: 800, overlap_tokens: 100")
	}

	if c.Embeddings.Model == "" {
		return hxerrors.ConfigError("embeddings.model must not be empty", nil)
	}
	if c.Embeddings.BatchSize <= 0 || c.Embeddings.BatchSize > 512 {
		return hxerrors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must be in 1..512, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.CacheSize < 0 {
		return hxerrors.ConfigError(
			fmt.Sprintf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize), nil)
	}

	if c.Qdrant.URL == "" {
		return hxerrors.ConfigError("qdrant.url must not be empty", nil)
	}
	if c.Qdrant.Collection == "" {
		return hxerrors.ConfigError("qdrant.collection must not be empty", nil)
	}

	if c.Index.Workers < 1 || c.Index.Workers > 32 {
		return hxerrors.ConfigError(
			fmt.Sprintf("index.workers must be in 1..32, got %d", c.Index.Workers), nil)
	}

	if c.Query.TopK <= 0 {
		return hxerrors.ConfigError(
			fmt.Sprintf("query.top_k must be positive, got %d", c.Query.TopK), nil)
	}

	if c.Logging.Level != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
		if !validLevels[strings.ToLower(c.Logging.Level)] {
			return hxerrors.ConfigError(
				fmt.Sprintf("logging.level must be debug, info, warn, or error, got %s", c.Logging.Level), nil)
		}
	}

	return nil
}

// WriteYAML writes the configuration to path. Secrets carry yaml:"-" tags and
// stay out of the file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return hxerrors.ConfigError("cannot marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return hxerrors.ConfigError(fmt.Sprintf("cannot write config file %s", path), err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .hindex.yaml/.yml file. Falls back to startDir when nothing is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	current := absDir
	for {
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		if fileExists(filepath.Join(current, ".hindex.yaml")) ||
			fileExists(filepath.Join(current, ".hindex.yml")) {
			return current, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
