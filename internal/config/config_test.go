package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/pkg/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvConfigPath, EnvDBPath, EnvIndexDir, EnvEmbeddingProvider,
		EnvEmbeddingModel, EnvEmbeddingDim, EnvLogLevel, EnvHTTPAddr} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lorekeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.Search.RRFK)
	assert.Equal(t, 50, cfg.Embedding.BatchSize)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
db_path: /var/lib/lk/index.db
index_dir: /var/lib/lk/vectors
log_level: debug
embedding:
  provider: local
  dimension: 64
  batch_size: 20
corpora:
  gamedata:
    root: Server/Game
    extensions: [.json]
    type_dirs:
      Items: item
  code:
    kind: jsonl
    root: /abs/code.jsonl
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lk/index.db", cfg.DBPath)
	assert.Equal(t, 64, cfg.Embedding.Dimension)
	assert.Equal(t, 20, cfg.Embedding.BatchSize)
	assert.Equal(t, 10000, cfg.Embedding.CacheSize, "unset keys keep defaults")

	gd := cfg.Corpora[types.CorpusGamedata]
	require.NotNil(t, gd)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "Server/Game"), gd.Root)
	assert.Equal(t, "item", gd.TypeDirs["Items"])
	assert.Equal(t, "/abs/code.jsonl", cfg.Corpora[types.CorpusCode].Root)

	assert.Equal(t, []types.Corpus{types.CorpusCode, types.CorpusGamedata}, cfg.CorpusNames())

	level, err := ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: /from/file.db\n")

	t.Setenv(EnvDBPath, "/from/env.db")
	t.Setenv(EnvEmbeddingProvider, "openai")
	t.Setenv(EnvEmbeddingDim, "1536")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "warn", cfg.LogLevel)

	t.Setenv(EnvEmbeddingDim, "wide")
	_, err = Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_MissingFiles(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err, "missing default file falls back to defaults")
	assert.NotEmpty(t, cfg.DBPath)

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "explicit path must exist")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"batch size", func(c *Config) { c.Embedding.BatchSize = 500 }, "batch_size"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"rrf k", func(c *Config) { c.Search.RRFK = 0 }, "rrf_k"},
		{"unknown corpus", func(c *Config) { c.Corpora["wiki"] = &Source{Root: "x"} }, "unknown corpus"},
		{"missing root", func(c *Config) { c.Corpora[types.CorpusDocs] = &Source{} }, "root is empty"},
		{"bad kind", func(c *Config) { c.Corpora[types.CorpusDocs] = &Source{Root: "d", Kind: "git"} }, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "db_path: [unclosed\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
