package vectorindex

import (
	"errors"
	"fmt"
	"time"
)

// FormatVersion is bumped whenever the snapshot layout changes. Snapshots of
// another version are rebuilt, never migrated.
const FormatVersion = "2"

var (
	// ErrRebuildRequired means the persisted index cannot serve the current
	// provider. The caller re-embeds the corpus and builds a new index.
	ErrRebuildRequired = errors.New("vector index rebuild required")

	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyIndex        = errors.New("vector index is empty")
)

// Descriptor identifies the vector space an index was built in.
type Descriptor struct {
	ProviderID    string    `yaml:"provider_id" json:"provider_id"`
	Dimension     int       `yaml:"dimension" json:"dimension"`
	FormatVersion string    `yaml:"format_version" json:"format_version"`
	Count         int       `yaml:"count" json:"count"`
	BuiltAt       time.Time `yaml:"built_at" json:"built_at"`
}

// Compatible reports whether an index described by d can be queried with
// vectors from want.
func (d Descriptor) Compatible(want Descriptor) error {
	switch {
	case d.FormatVersion != FormatVersion:
		return fmt.Errorf("%w: format %q, want %q", ErrRebuildRequired, d.FormatVersion, FormatVersion)
	case d.ProviderID != want.ProviderID:
		return fmt.Errorf("%w: provider %q, want %q", ErrRebuildRequired, d.ProviderID, want.ProviderID)
	case want.Dimension > 0 && d.Dimension != want.Dimension:
		return fmt.Errorf("%w: dimension %d, want %d", ErrRebuildRequired, d.Dimension, want.Dimension)
	}
	return nil
}

// Hit is one query result. Ordinal is the position of the vector in the
// slice passed to Build and ID the node id given for it.
type Hit struct {
	Ordinal int
	ID      string
	Score   float32
}

// Index is an immutable ANN index over one corpus. It keeps the node id of
// every ordinal, so a reader never needs the store to agree with the handle
// it holds.
type Index struct {
	desc  Descriptor
	ids   []string
	graph *graph
}

// Build creates an index over vectors, where ids[i] names vectors[i]. The
// dimension is fixed by the first vector; an empty input yields an empty
// index with desc.Dimension.
func Build(desc Descriptor, ids []string, vectors [][]float32, cfg Config) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%d ids for %d vectors", len(ids), len(vectors))
	}
	dim := desc.Dimension
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if desc.Dimension > 0 && dim != desc.Dimension {
		return nil, fmt.Errorf("%w: vectors have %d, provider reports %d", ErrDimensionMismatch, dim, desc.Dimension)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has %d, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}

	desc.Dimension = dim
	desc.FormatVersion = FormatVersion
	desc.Count = len(vectors)
	if desc.BuiltAt.IsZero() {
		desc.BuiltAt = time.Now().UTC()
	}

	return &Index{desc: desc, ids: ids, graph: buildGraph(cfg, dim, vectors)}, nil
}

// Descriptor returns the identity of the index.
func (ix *Index) Descriptor() Descriptor {
	return ix.desc
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	return len(ix.graph.vectors)
}

// Query returns up to k nearest vectors by cosine similarity, best first.
func (ix *Index) Query(vec []float32, k int) ([]Hit, error) {
	if len(vec) != ix.desc.Dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(vec), ix.desc.Dimension)
	}
	if ix.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, nil
	}

	items := ix.graph.search(normalized(vec), k, ix.graph.cfg.EfSearch)
	hits := make([]Hit, len(items))
	for i, it := range items {
		hits[i] = Hit{Ordinal: int(it.id), ID: ix.ids[it.id], Score: 1 - it.dist}
	}
	return hits, nil
}
