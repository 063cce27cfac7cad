package indexer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dshills/lorekeeper/internal/extractor"
	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// HealStats summarizes one healing sweep.
type HealStats struct {
	Batches    int
	Scanned    int
	Rewritten  int // pending refs replaced by real targets
	Reattached int // edges whose deleted target came back
	More       bool
}

// Healer re-resolves dangling edges: pending cross-corpus references and
// edges whose target node was deleted. Virtual references are never
// touched. A sweep is bounded to maxBatches pages of batchSize edges.
type Healer struct {
	store      storage.Storage
	batchSize  int
	maxBatches int
	logger     *slog.Logger

	// mu serializes sweeps with the edge phase of passes, so a sweep never
	// rewrites an edge a pass is replacing.
	mu      sync.Mutex
	trigger chan struct{}
}

// NewHealer creates a Healer over store.
func NewHealer(store storage.Storage, batchSize, maxBatches int, logger *slog.Logger) *Healer {
	if batchSize <= 0 {
		batchSize = DefaultHealBatchSize
	}
	if maxBatches <= 0 {
		maxBatches = DefaultHealMaxBatches
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Healer{
		store:      store,
		batchSize:  batchSize,
		maxBatches: maxBatches,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
	}
}

func (h *Healer) exclusive(fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn()
}

// Trigger asks the background worker for a sweep. It never blocks; requests
// made while a sweep is pending collapse into one.
func (h *Healer) Trigger() {
	select {
	case h.trigger <- struct{}{}:
	default:
	}
}

// Run sweeps whenever triggered until ctx is done. A sweep that stopped at
// its batch bound re-triggers itself.
func (h *Healer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.trigger:
			stats, err := h.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					h.logger.Warn("heal.failed", "error", err)
				}
				continue
			}
			if stats.More {
				h.Trigger()
			}
		}
	}
}

// Sweep runs one bounded healing pass over the dangling edges.
func (h *Healer) Sweep(ctx context.Context) (HealStats, error) {
	var stats HealStats
	err := h.exclusive(func() error {
		res, err := resolver.Build(ctx, h.store, types.CorpusGamedata, types.CorpusCode)
		if err != nil {
			return err
		}

		var after int64
		for stats.Batches < h.maxBatches {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := h.store.ListDanglingEdges(ctx, after, h.batchSize)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}
			stats.Batches++
			stats.Scanned += len(page)
			after = page[len(page)-1].RowID

			rewritten, reattached, err := h.healPage(ctx, page, res)
			if err != nil {
				return err
			}
			stats.Rewritten += rewritten
			stats.Reattached += reattached
			h.logger.Debug("heal.batch", "batch", stats.Batches, "scanned", len(page),
				"rewritten", rewritten, "reattached", reattached)

			if len(page) < h.batchSize {
				return nil
			}
		}
		stats.More = true
		return nil
	})
	if err != nil {
		return stats, err
	}
	if stats.Rewritten+stats.Reattached > 0 || stats.More {
		h.logger.Info("heal.done", "batches", stats.Batches, "scanned", stats.Scanned,
			"rewritten", stats.Rewritten, "reattached", stats.Reattached, "more", stats.More)
	}
	return stats, nil
}

func (h *Healer) healPage(ctx context.Context, page []storage.DanglingEdge, res *resolver.Resolver) (int, int, error) {
	var plain []string
	for _, d := range page {
		if _, _, pending := types.ParsePendingRef(d.Edge.TargetID); !pending {
			plain = append(plain, d.Edge.TargetID)
		}
	}
	exists, err := h.store.NodesExist(ctx, plain)
	if err != nil {
		return 0, 0, err
	}

	var rewritten, reattached int
	err = h.store.WithTx(ctx, func(tx storage.Tx) error {
		for _, d := range page {
			e := d.Edge
			if _, _, pending := types.ParsePendingRef(e.TargetID); pending {
				found := extractor.ResolvePending(e, res)
				if len(found) == 0 {
					continue
				}
				if err := tx.ReplaceEdge(ctx, e, found); err != nil {
					return err
				}
				rewritten++
				continue
			}
			if !exists[e.TargetID] {
				continue
			}
			if err := tx.MarkEdgeResolved(ctx, e); err != nil {
				return err
			}
			reattached++
		}
		return nil
	})
	return rewritten, reattached, err
}
