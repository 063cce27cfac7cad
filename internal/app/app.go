// Package app assembles the store, embedder, vector indexes, indexer and
// searcher from a config. The CLI, the MCP server and the HTTP API all run
// on one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dshills/lorekeeper/internal/config"
	"github.com/dshills/lorekeeper/internal/embedder"
	"github.com/dshills/lorekeeper/internal/indexer"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/internal/source"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

// App holds the long-lived components. The embedder is shared by the
// indexer and the searcher so both use one cache and one vector space.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *storage.SQLiteStorage
	Embedder embedder.Embedder
	Vectors  *vectorindex.Manager
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
}

// New opens the database and index directory named by cfg and wires every
// component. The caller must Close the App.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(cfg.IndexDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		Dimension: cfg.Embedding.Dimension,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	sources, err := Sources(cfg)
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	vectors := vectorindex.NewManager(cfg.IndexDir, vectorindex.DefaultConfig())

	srch, err := searcher.New(store, emb, vectors, searcher.Options{
		RRFK:         cfg.Search.RRFK,
		SemanticK:    cfg.Search.SemanticK,
		DefaultLimit: cfg.Search.DefaultLimit,
		CacheSize:    cfg.Search.CacheSize,
		Logger:       logger,
	})
	if err != nil {
		_ = emb.Close()
		_ = store.Close()
		return nil, err
	}

	idx := indexer.New(store, sources, emb, vectors, indexer.Options{
		BatchSize:      cfg.Embedding.BatchSize,
		HealBatchSize:  cfg.Indexer.HealBatchSize,
		HealMaxBatches: cfg.Indexer.HealMaxBatches,
		Logger:         logger,
		OnPassDone:     func(types.Corpus) { srch.Invalidate() },
	})

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Embedder: emb,
		Vectors:  vectors,
		Indexer:  idx,
		Searcher: srch,
	}
	a.openIndexes()
	return a, nil
}

// Sources builds one source per configured corpus.
func Sources(cfg *config.Config) ([]source.Source, error) {
	var out []source.Source
	for _, corpus := range cfg.CorpusNames() {
		src, err := source.New(corpus, cfg.Corpora[corpus], cfg.Indexer.ScanWorkers)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// openIndexes publishes the persisted vector indexes so queries work before
// the first pass. A missing or stale index is rebuilt by the next pass.
func (a *App) openIndexes() {
	want := vectorindex.Descriptor{ProviderID: a.Embedder.ProviderID(), Dimension: a.Embedder.Dimension()}
	for _, corpus := range types.AllCorpora {
		err := a.Vectors.Open(corpus, want)
		switch {
		case err == nil:
			a.Logger.Debug("vector_index.opened", "corpus", corpus)
		case errors.Is(err, vectorindex.ErrRebuildRequired):
			a.Logger.Debug("vector_index.pending", "corpus", corpus, "reason", err)
		default:
			a.Logger.Warn("vector_index.unavailable", "corpus", corpus, "error", err)
		}
	}
}

// Serve starts background healing for long-lived processes.
func (a *App) Serve(ctx context.Context) {
	a.Indexer.StartHealer(ctx)
}

// Close releases the embedder and the database.
func (a *App) Close() error {
	return errors.Join(a.Embedder.Close(), a.Store.Close())
}
