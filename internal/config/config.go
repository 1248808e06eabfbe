// Package config loads and validates codewitness configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete codewitness configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	// DataDir holds the SQLite database, ONNX model cache, and lock files.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// WatchDirs are the absolute paths the watcher indexes on startup.
	WatchDirs []string `yaml:"watch_dirs" json:"watch_dirs"`

	Server     ServerConfig     `yaml:"server" json:"server"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP transport alongside the MCP stdio transport.
type ServerConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	APIKey string `yaml:"api_key" json:"-"`
}

// EmbeddingsConfig configures the ONNX embedding worker pool.
type EmbeddingsConfig struct {
	ModelPath        string `yaml:"model_path" json:"model_path"`
	TokenizerPath    string `yaml:"tokenizer_path" json:"tokenizer_path"`
	Dimensions       int    `yaml:"dimensions" json:"dimensions"`
	EmbeddingThreads int    `yaml:"embedding_threads" json:"embedding_threads"`
	CacheSize        int    `yaml:"cache_size" json:"cache_size"`
}

// IndexingConfig configures the chunker and file filter.
type IndexingConfig struct {
	TargetLines  int `yaml:"target_lines" json:"target_lines"`
	MinLines     int `yaml:"min_lines" json:"min_lines"`
	MaxLines     int `yaml:"max_lines" json:"max_lines"`
	OverlapLines int `yaml:"overlap_lines" json:"overlap_lines"`
	DebounceMs   int `yaml:"debounce_ms" json:"debounce_ms"`
	MaxFileBytes int `yaml:"max_file_bytes" json:"max_file_bytes"`
}

// LoggingConfig configures log/slog output.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version:   1,
		DataDir:   defaultDataDir(),
		WatchDirs: nil,
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Embeddings: EmbeddingsConfig{
			ModelPath:        "",
			TokenizerPath:    "",
			Dimensions:       384,
			EmbeddingThreads: defaultEmbeddingThreads(),
			CacheSize:        2048,
		},
		Indexing: IndexingConfig{
			TargetLines:  50,
			MinLines:     10,
			MaxLines:     100,
			OverlapLines: 5,
			DebounceMs:   500,
			MaxFileBytes: 5 * 1024 * 1024,
		},
		Logging: LoggingConfig{
			Level:         "info",
			WriteToStderr: false,
		},
	}
}

func defaultEmbeddingThreads() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > 8 {
		n = 8
	}
	return n
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codewitness"
	}
	return filepath.Join(home, ".codewitness")
}

// Load reads configuration from dir/.codewitness.yaml (if present), then
// applies CODEWITNESS_* environment overrides on top of the file.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	candidates := []string{
		filepath.Join(dir, ".codewitness.yaml"),
		filepath.Join(dir, ".codewitness.yml"),
	}

	for _, path := range candidates {
		if !fileExists(path) {
			continue
		}
		return c.loadYAML(path)
	}

	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	c.mergeWith(&fileCfg)
	return nil
}

// mergeWith overlays non-zero fields from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if len(other.WatchDirs) > 0 {
		c.WatchDirs = other.WatchDirs
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.APIKey != "" {
		c.Server.APIKey = other.Server.APIKey
	}
	if other.Embeddings.ModelPath != "" {
		c.Embeddings.ModelPath = other.Embeddings.ModelPath
	}
	if other.Embeddings.TokenizerPath != "" {
		c.Embeddings.TokenizerPath = other.Embeddings.TokenizerPath
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.EmbeddingThreads != 0 {
		c.Embeddings.EmbeddingThreads = other.Embeddings.EmbeddingThreads
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Indexing.TargetLines != 0 {
		c.Indexing.TargetLines = other.Indexing.TargetLines
	}
	if other.Indexing.MinLines != 0 {
		c.Indexing.MinLines = other.Indexing.MinLines
	}
	if other.Indexing.MaxLines != 0 {
		c.Indexing.MaxLines = other.Indexing.MaxLines
	}
	if other.Indexing.OverlapLines != 0 {
		c.Indexing.OverlapLines = other.Indexing.OverlapLines
	}
	if other.Indexing.DebounceMs != 0 {
		c.Indexing.DebounceMs = other.Indexing.DebounceMs
	}
	if other.Indexing.MaxFileBytes != 0 {
		c.Indexing.MaxFileBytes = other.Indexing.MaxFileBytes
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.WriteToStderr {
		c.Logging.WriteToStderr = other.Logging.WriteToStderr
	}
}

// applyEnvOverrides overlays CODEWITNESS_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEWITNESS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CODEWITNESS_WATCH_DIRS"); v != "" {
		c.WatchDirs = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("CODEWITNESS_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CODEWITNESS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("CODEWITNESS_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("CODEWITNESS_MODEL_PATH"); v != "" {
		c.Embeddings.ModelPath = v
	}
	if v := os.Getenv("CODEWITNESS_TOKENIZER_PATH"); v != "" {
		c.Embeddings.TokenizerPath = v
	}
	if v := os.Getenv("CODEWITNESS_EMBEDDING_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embeddings.EmbeddingThreads = n
		}
	}
	if v := os.Getenv("CODEWITNESS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive")
	}
	if c.Embeddings.EmbeddingThreads < 1 || c.Embeddings.EmbeddingThreads > 32 {
		return fmt.Errorf("embeddings.embedding_threads must be between 1 and 32, got %d", c.Embeddings.EmbeddingThreads)
	}
	if c.Indexing.MinLines <= 0 || c.Indexing.TargetLines < c.Indexing.MinLines || c.Indexing.MaxLines < c.Indexing.TargetLines {
		return fmt.Errorf("indexing line bounds must satisfy 0 < min <= target <= max")
	}
	if c.Indexing.OverlapLines < 0 || c.Indexing.OverlapLines >= c.Indexing.MinLines {
		return fmt.Errorf("indexing.overlap_lines must be non-negative and smaller than min_lines")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// FindProjectRoot walks up from startDir looking for a .git directory,
// falling back to startDir itself if none is found.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", startDir, err)
	}

	dir := abs
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
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
