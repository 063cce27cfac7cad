package vectorindex

import (
	"fmt"
	"sync/atomic"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Manager owns one index handle per corpus. Readers take the current
// handle with Get and keep using it for the whole query even if a pass
// swaps in a new one.
type Manager struct {
	dir     string
	cfg     Config
	handles map[types.Corpus]*atomic.Pointer[Index]
}

// NewManager creates a manager persisting under dir.
func NewManager(dir string, cfg Config) *Manager {
	m := &Manager{
		dir:     dir,
		cfg:     cfg.withDefaults(),
		handles: make(map[types.Corpus]*atomic.Pointer[Index], len(types.AllCorpora)),
	}
	for _, c := range types.AllCorpora {
		m.handles[c] = &atomic.Pointer[Index]{}
	}
	return m
}

// Dir returns the directory index files live in.
func (m *Manager) Dir() string {
	return m.dir
}

// Open loads the persisted index of a corpus and publishes it. On
// ErrRebuildRequired the current handle is cleared.
func (m *Manager) Open(corpus types.Corpus, want Descriptor) error {
	h, err := m.handle(corpus)
	if err != nil {
		return err
	}
	ix, err := Load(m.dir, string(corpus), want)
	if err != nil {
		h.Store(nil)
		return err
	}
	h.Store(ix)
	return nil
}

// Build builds, persists and publishes a new index for a corpus. The old
// handle stays live until the new files are in place.
func (m *Manager) Build(corpus types.Corpus, desc Descriptor, ids []string, vectors [][]float32) (*Index, error) {
	h, err := m.handle(corpus)
	if err != nil {
		return nil, err
	}
	ix, err := Build(desc, ids, vectors, m.cfg)
	if err != nil {
		return nil, err
	}
	if err := ix.Save(m.dir, string(corpus)); err != nil {
		return nil, err
	}
	h.Store(ix)
	return ix, nil
}

// Get returns the published index of a corpus, or nil.
func (m *Manager) Get(corpus types.Corpus) *Index {
	h, ok := m.handles[corpus]
	if !ok {
		return nil
	}
	return h.Load()
}

// Query searches the published index of a corpus.
func (m *Manager) Query(corpus types.Corpus, vec []float32, k int) ([]Hit, error) {
	ix := m.Get(corpus)
	if ix == nil {
		return nil, ErrEmptyIndex
	}
	return ix.Query(vec, k)
}

// Remove drops the handle and the files of a corpus.
func (m *Manager) Remove(corpus types.Corpus) error {
	h, err := m.handle(corpus)
	if err != nil {
		return err
	}
	h.Store(nil)
	return Remove(m.dir, string(corpus))
}

func (m *Manager) handle(corpus types.Corpus) (*atomic.Pointer[Index], error) {
	h, ok := m.handles[corpus]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCorpus, corpus)
	}
	return h, nil
}
