package indexer

import (
	"context"
	"errors"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

// CorpusStatus describes the indexed state of one corpus.
type CorpusStatus struct {
	Corpus     types.Corpus
	Configured bool
	Indexing   bool
	Stats      *storage.CorpusStats
	State      *storage.CorpusState
	LastRun    *storage.IndexRun
	Index      *vectorindex.Descriptor
}

// Status reports every corpus, configured or not, in schedule order.
func (idx *Indexer) Status(ctx context.Context) ([]CorpusStatus, error) {
	out := make([]CorpusStatus, 0, len(types.AllCorpora))
	for _, corpus := range types.AllCorpora {
		st, err := idx.CorpusStatus(ctx, corpus)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

// CorpusStatus reports one corpus.
func (idx *Indexer) CorpusStatus(ctx context.Context, corpus types.Corpus) (*CorpusStatus, error) {
	if !corpus.Valid() {
		return nil, types.ErrUnknownCorpus
	}
	_, configured := idx.sources[corpus]
	st := &CorpusStatus{
		Corpus:     corpus,
		Configured: configured,
		Indexing:   idx.locks.held(corpus),
	}

	stats, err := idx.store.GetCorpusStats(ctx, corpus)
	if err != nil {
		return nil, err
	}
	st.Stats = stats

	state, err := idx.store.GetCorpusState(ctx, corpus)
	switch {
	case err == nil:
		st.State = state
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	run, err := idx.store.LastIndexRun(ctx, corpus)
	switch {
	case err == nil:
		st.LastRun = run
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	if ix := idx.vectors.Get(corpus); ix != nil {
		desc := ix.Descriptor()
		st.Index = &desc
	} else if desc, err := vectorindex.ReadDescriptor(idx.vectors.Dir(), string(corpus)); err == nil {
		st.Index = &desc
	}
	return st, nil
}
