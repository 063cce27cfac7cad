package hashtracker

import (
	"context"
	"fmt"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Store is the subset of the graph store the tracker persists through.
type Store interface {
	GetFileHashes(ctx context.Context, corpus types.Corpus) (map[string]string, error)
	UpdateHashes(ctx context.Context, corpus types.Corpus, hashes []storage.FileHash) error
	RemoveHashes(ctx context.Context, corpus types.Corpus, paths []string) error
}

// Tracker loads and persists per-(file, corpus) content hashes.
type Tracker struct {
	store Store
}

// New creates a Tracker backed by store.
func New(store Store) *Tracker {
	return &Tracker{store: store}
}

// Detect loads the stored snapshot for corpus and compares it with current.
func (t *Tracker) Detect(ctx context.Context, corpus types.Corpus, current map[string]string) (ChangeSet, error) {
	existing, err := t.store.GetFileHashes(ctx, corpus)
	if err != nil {
		return ChangeSet{}, fmt.Errorf("load hashes for %s: %w", corpus, err)
	}
	return ComputeChangeSet(existing, current), nil
}

// Commit records the outcome of a pass. It must only be called after the
// graph mutations for those files have committed; a crash before it runs
// leaves the files looking changed, and the next pass redoes them.
// failed marks files whose records could not be parsed.
func (t *Tracker) Commit(ctx context.Context, corpus types.Corpus, cs ChangeSet, current map[string]string, failed map[string]bool) error {
	reparsed := cs.Reparse()
	rows := make([]storage.FileHash, 0, len(reparsed))
	for _, path := range reparsed {
		status := storage.FileIndexed
		if failed[path] {
			status = storage.FileError
		}
		rows = append(rows, storage.FileHash{Corpus: corpus, Path: path, Hash: current[path], Status: status})
	}
	if len(rows) > 0 {
		if err := t.store.UpdateHashes(ctx, corpus, rows); err != nil {
			return fmt.Errorf("update hashes for %s: %w", corpus, err)
		}
	}
	if len(cs.Deleted) > 0 {
		if err := t.store.RemoveHashes(ctx, corpus, cs.Deleted); err != nil {
			return fmt.Errorf("remove hashes for %s: %w", corpus, err)
		}
	}
	return nil
}
