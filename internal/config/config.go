package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Environment overrides, applied after the file is read.
const (
	EnvConfigPath        = "LOREKEEPER_CONFIG"
	EnvDBPath            = "LOREKEEPER_DB_PATH"
	EnvIndexDir          = "LOREKEEPER_INDEX_DIR"
	EnvEmbeddingProvider = "LOREKEEPER_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "LOREKEEPER_EMBEDDING_MODEL"
	EnvEmbeddingDim      = "LOREKEEPER_EMBEDDING_DIMENSION"
	EnvLogLevel          = "LOREKEEPER_LOG_LEVEL"
	EnvHTTPAddr          = "LOREKEEPER_HTTP_ADDR"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "lorekeeper.yaml"

// Source kinds
const (
	KindFiles = "files"
	KindJSONL = "jsonl"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full runtime configuration.
type Config struct {
	DBPath    string                   `yaml:"db_path"`
	IndexDir  string                   `yaml:"index_dir"`
	LogLevel  string                   `yaml:"log_level"`
	HTTPAddr  string                   `yaml:"http_addr"`
	Embedding Embedding                `yaml:"embedding"`
	Indexer   Indexer                  `yaml:"indexer"`
	Search    Search                   `yaml:"search"`
	Corpora   map[types.Corpus]*Source `yaml:"corpora"`
}

// Embedding selects and tunes the embedding provider.
type Embedding struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
	BaseURL   string `yaml:"base_url"`
	CacheSize int    `yaml:"cache_size"`
}

// Indexer tunes the orchestrator.
type Indexer struct {
	HealBatchSize  int `yaml:"heal_batch_size"`
	HealMaxBatches int `yaml:"heal_max_batches"`
	ScanWorkers    int `yaml:"scan_workers"`
}

// Search tunes the query router.
type Search struct {
	DefaultLimit int `yaml:"default_limit"`
	SemanticK    int `yaml:"semantic_k"`
	RRFK         int `yaml:"rrf_k"`
	CacheSize    int `yaml:"cache_size"`
}

// Source describes where the chunks of one corpus come from. TypeDirs maps
// a directory name to the data type of the records under it.
type Source struct {
	Kind       string            `yaml:"kind"`
	Root       string            `yaml:"root"`
	Extensions []string          `yaml:"extensions"`
	Exclude    []string          `yaml:"exclude"`
	TypeDirs   map[string]string `yaml:"type_dirs"`
}

// Default returns a config with every tunable set and no corpora.
func Default() *Config {
	return &Config{
		DBPath:   filepath.Join("~", ".lorekeeper", "index.db"),
		IndexDir: filepath.Join("~", ".lorekeeper", "vectors"),
		LogLevel: "info",
		HTTPAddr: ":8080",
		Embedding: Embedding{
			Provider:  "",
			BatchSize: 50,
			CacheSize: 10000,
		},
		Indexer: Indexer{
			HealBatchSize:  500,
			HealMaxBatches: 20,
		},
		Search: Search{
			DefaultLimit: 10,
			SemanticK:    50,
			RRFK:         60,
			CacheSize:    256,
		},
		Corpora: map[types.Corpus]*Source{},
	}
}

// Load reads path, or DefaultFile when path is empty, applies environment
// overrides and validates the result. A missing DefaultFile is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		cfg.resolveRoots(filepath.Dir(path))
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.expandHome()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvIndexDir); v != "" {
		c.IndexDir = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv(EnvEmbeddingModel); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv(EnvEmbeddingDim); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvEmbeddingDim, v)
		}
		c.Embedding.Dimension = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	return nil
}

// resolveRoots makes relative corpus roots relative to the config file.
func (c *Config) resolveRoots(base string) {
	for _, src := range c.Corpora {
		if src == nil || src.Root == "" || filepath.IsAbs(src.Root) || strings.HasPrefix(src.Root, "~") {
			continue
		}
		src.Root = filepath.Join(base, src.Root)
	}
}

func (c *Config) expandHome() {
	c.DBPath = expandHome(c.DBPath)
	c.IndexDir = expandHome(c.IndexDir)
	for _, src := range c.Corpora {
		if src != nil {
			src.Root = expandHome(src.Root)
		}
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, "~"+string(filepath.Separator)) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Validate checks the config for values the rest of the program cannot
// work with.
func (c *Config) Validate() error {
	var problems []string
	if c.DBPath == "" {
		problems = append(problems, "db_path is empty")
	}
	if c.IndexDir == "" {
		problems = append(problems, "index_dir is empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		problems = append(problems, fmt.Sprintf("embedding.batch_size %d not in 1..100", c.Embedding.BatchSize))
	}
	if c.Embedding.Dimension < 0 {
		problems = append(problems, "embedding.dimension is negative")
	}
	if c.Indexer.HealBatchSize <= 0 {
		problems = append(problems, "indexer.heal_batch_size must be positive")
	}
	if c.Indexer.HealMaxBatches <= 0 {
		problems = append(problems, "indexer.heal_max_batches must be positive")
	}
	if c.Search.RRFK <= 0 {
		problems = append(problems, "search.rrf_k must be positive")
	}
	if c.Search.DefaultLimit <= 0 {
		problems = append(problems, "search.default_limit must be positive")
	}

	for _, corpus := range c.CorpusNames() {
		src := c.Corpora[corpus]
		if !corpus.Valid() {
			problems = append(problems, fmt.Sprintf("corpora.%s: unknown corpus", corpus))
			continue
		}
		if src == nil {
			problems = append(problems, fmt.Sprintf("corpora.%s: empty", corpus))
			continue
		}
		if src.Root == "" {
			problems = append(problems, fmt.Sprintf("corpora.%s.root is empty", corpus))
		}
		switch src.Kind {
		case KindFiles, KindJSONL, "":
		default:
			problems = append(problems, fmt.Sprintf("corpora.%s.kind %q must be files or jsonl", corpus, src.Kind))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// CorpusNames returns the configured corpora in a stable order.
func (c *Config) CorpusNames() []types.Corpus {
	names := make([]types.Corpus, 0, len(c.Corpora))
	for name := range c.Corpora {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ParseLevel maps a log_level string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}
