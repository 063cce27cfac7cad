package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/lorekeeper/internal/embedder"
	"github.com/dshills/lorekeeper/internal/hashtracker"
	"github.com/dshills/lorekeeper/internal/source"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Default option values
const (
	DefaultBatchSize      = 50
	DefaultHealBatchSize  = 500
	DefaultHealMaxBatches = 20
)

// Options configures an Indexer.
type Options struct {
	// BatchSize is the number of texts sent per embedding request.
	BatchSize int

	// HealBatchSize and HealMaxBatches bound one healing sweep.
	HealBatchSize  int
	HealMaxBatches int

	Logger *slog.Logger

	// OnPassDone is called after every pass that changed a corpus, e.g. to
	// drop cached query results.
	OnPassDone func(corpus types.Corpus)
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchSize > embedder.MaxBatchSize {
		o.BatchSize = embedder.MaxBatchSize
	}
	if o.HealBatchSize <= 0 {
		o.HealBatchSize = DefaultHealBatchSize
	}
	if o.HealMaxBatches <= 0 {
		o.HealMaxBatches = DefaultHealMaxBatches
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Indexer coordinates the indexing pipeline of every corpus:
// detect -> parse -> filter -> embed -> write -> vector index -> edges.
type Indexer struct {
	store    storage.Storage
	sources  map[types.Corpus]source.Source
	embedder embedder.Embedder
	vectors  *vectorindex.Manager
	tracker  *hashtracker.Tracker
	healer   *Healer
	locks    lockSet
	logger   *slog.Logger
	opts     Options

	background bool
}

// New creates an Indexer. sources holds the configured corpora; corpora
// without a source cannot be indexed.
func New(store storage.Storage, sources []source.Source, emb embedder.Embedder, vectors *vectorindex.Manager, opts Options) *Indexer {
	opts = opts.withDefaults()
	bySource := make(map[types.Corpus]source.Source, len(sources))
	for _, s := range sources {
		bySource[s.Corpus()] = s
	}
	return &Indexer{
		store:    store,
		sources:  bySource,
		embedder: emb,
		vectors:  vectors,
		tracker:  hashtracker.New(store),
		healer:   NewHealer(store, opts.HealBatchSize, opts.HealMaxBatches, opts.Logger),
		locks:    newLockSet(),
		logger:   opts.Logger,
		opts:     opts,
	}
}

// Healer returns the dangling-edge healer shared by all passes.
func (idx *Indexer) Healer() *Healer {
	return idx.healer
}

// StartHealer runs the healing sweep in a background worker until ctx is
// done. Passes started afterwards trigger it instead of healing inline.
func (idx *Indexer) StartHealer(ctx context.Context) {
	idx.background = true
	go idx.healer.Run(ctx)
}

// Corpora returns the configured corpora in schedule order.
func (idx *Indexer) Corpora() []types.Corpus {
	var out []types.Corpus
	for _, c := range types.AllCorpora {
		if _, ok := idx.sources[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// CorpusResult is the outcome of one corpus in a Run.
type CorpusResult struct {
	Corpus   types.Corpus
	Run      *storage.IndexRun
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Failed reports whether any corpus of a run failed.
func Failed(results []CorpusResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Run indexes corpora, or every configured corpus when none is given, in
// dependency order. A failing corpus does not stop the others: edges that
// would point into it are kept pending until a later pass heals them.
func (idx *Indexer) Run(ctx context.Context, corpora ...types.Corpus) ([]CorpusResult, error) {
	if len(corpora) == 0 {
		corpora = idx.Corpora()
	}
	order, err := Schedule(corpora)
	if err != nil {
		return nil, err
	}

	results := make([]CorpusResult, 0, len(order))
	for _, corpus := range order {
		if err := ctx.Err(); err != nil {
			results = append(results, CorpusResult{Corpus: corpus, Skipped: true, Err: err})
			continue
		}
		start := time.Now()
		run, err := idx.IndexCorpus(ctx, corpus)
		results = append(results, CorpusResult{
			Corpus:   corpus,
			Run:      run,
			Err:      err,
			Skipped:  errors.Is(err, ErrIndexingInProgress),
			Duration: time.Since(start),
		})
	}
	return results, nil
}

// IndexCorpus runs one pass over corpus. Only one pass per corpus may run
// at a time; a concurrent request gets ErrIndexingInProgress.
func (idx *Indexer) IndexCorpus(ctx context.Context, corpus types.Corpus) (*storage.IndexRun, error) {
	src, ok := idx.sources[corpus]
	if !ok {
		if !corpus.Valid() {
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownCorpus, corpus)
		}
		return nil, fmt.Errorf("corpus %s has no configured source", corpus)
	}

	release, err := idx.locks.acquire(corpus)
	if err != nil {
		return nil, fmt.Errorf("corpus %s: %w", corpus, err)
	}
	defer release()

	p := newPass(idx, src)
	if err := idx.store.CreateIndexRun(ctx, p.run); err != nil {
		return nil, err
	}

	idx.logger.Info("pass.start", "corpus", corpus, "run", p.run.ID)
	err = p.execute(ctx)
	p.finish(err)

	// The run row is written even when ctx was cancelled.
	if ferr := idx.store.FinishIndexRun(context.WithoutCancel(ctx), p.run); ferr != nil {
		idx.logger.Error("run.finish.failed", "corpus", corpus, "run", p.run.ID, "error", ferr)
	}
	if err != nil {
		idx.logger.Error("pass.failed", "corpus", corpus, "run", p.run.ID, "phase", p.phase, "error", err)
		return p.run, fmt.Errorf("index %s: %w", corpus, err)
	}

	idx.logger.Info("pass.done",
		"corpus", corpus,
		"status", p.run.Status,
		"added", p.run.FilesAdded,
		"changed", p.run.FilesChanged,
		"deleted", p.run.FilesDeleted,
		"nodes", p.run.NodesWritten,
		"embedded", p.run.NodesEmbedded,
		"edges", p.run.EdgesWritten,
		"parse_errors", p.run.ParseErrors,
		"duration", p.run.FinishedAt.Sub(p.run.StartedAt))

	if p.run.Status == storage.RunSucceeded {
		idx.afterPass(ctx, corpus)
	}
	return p.run, nil
}

// afterPass heals dangling edges and notifies listeners.
func (idx *Indexer) afterPass(ctx context.Context, corpus types.Corpus) {
	if idx.background {
		idx.healer.Trigger()
	} else if _, err := idx.healer.Sweep(ctx); err != nil {
		idx.logger.Warn("heal.failed", "corpus", corpus, "error", err)
	}
	if idx.opts.OnPassDone != nil {
		idx.opts.OnPassDone(corpus)
	}
}
