package resolver

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Entry is one node reachable by name.
type Entry struct {
	ID       string
	Name     string
	NodeType string
	DataType string
}

// Lookup maps a lowercase name to every node carrying it. It is immutable
// once built.
type Lookup struct {
	byName map[string][]Entry
}

// NewLookup indexes entries by lowercase display name. Ids are kept sorted
// so resolution output is deterministic.
func NewLookup(entries []storage.NameEntry) *Lookup {
	l := &Lookup{byName: make(map[string][]Entry, len(entries))}
	for _, e := range entries {
		key := normalize(e.DisplayName)
		if key == "" {
			continue
		}
		l.byName[key] = append(l.byName[key], Entry{ID: e.ID, Name: e.DisplayName, NodeType: e.NodeType, DataType: e.DataType})
	}
	for key, list := range l.byName {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		l.byName[key] = dedupe(list)
	}
	return l
}

func dedupe(list []Entry) []Entry {
	out := list[:0]
	for i, e := range list {
		if i > 0 && e.ID == list[i-1].ID {
			continue
		}
		out = append(out, e)
	}
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Find returns the entries whose name matches case-insensitively.
func (l *Lookup) Find(name string) []Entry {
	if l == nil {
		return nil
	}
	return l.byName[normalize(name)]
}

// Len returns the number of distinct names.
func (l *Lookup) Len() int {
	if l == nil {
		return 0
	}
	return len(l.byName)
}

// NameSource lists the name entries of a corpus.
type NameSource interface {
	ListNameEntries(ctx context.Context, corpus types.Corpus) ([]storage.NameEntry, error)
}

// Resolver holds one Lookup per corpus. It is built once at the start of an
// edge phase and passed explicitly to extractors.
type Resolver struct {
	lookups map[types.Corpus]*Lookup
}

// Build loads lookups for corpora from the current store state.
func Build(ctx context.Context, src NameSource, corpora ...types.Corpus) (*Resolver, error) {
	r := &Resolver{lookups: make(map[types.Corpus]*Lookup, len(corpora))}
	for _, c := range corpora {
		entries, err := src.ListNameEntries(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("build %s lookup: %w", c, err)
		}
		r.lookups[c] = NewLookup(entries)
	}
	return r, nil
}

// FromLookups assembles a Resolver from prebuilt lookups.
func FromLookups(lookups map[types.Corpus]*Lookup) *Resolver {
	return &Resolver{lookups: maps.Clone(lookups)}
}

// Lookup returns the lookup of corpus, or nil.
func (r *Resolver) Lookup(corpus types.Corpus) *Lookup {
	return r.lookups[corpus]
}

// ResolveStem resolves a game data filename stem.
func (r *Resolver) ResolveStem(stem, sourceID string, edgeType types.EdgeType, metadata map[string]any) []types.Edge {
	return r.Resolve(types.CorpusGamedata, stem, sourceID, edgeType, metadata, nil)
}

// Resolve turns a name into edges from sourceID. A miss yields no edges.
// Matches equal to sourceID are dropped, as are entries accept rejects when
// it is set. When more than one match survives, every edge is flagged
// multi_match.
func (r *Resolver) Resolve(corpus types.Corpus, name, sourceID string, edgeType types.EdgeType, metadata map[string]any, accept func(Entry) bool) []types.Edge {
	found := r.Lookup(corpus).Find(name)
	matches := make([]Entry, 0, len(found))
	for _, m := range found {
		if m.ID == sourceID || (accept != nil && !accept(m)) {
			continue
		}
		matches = append(matches, m)
	}
	if len(matches) == 0 {
		return nil
	}

	multi := len(matches) > 1
	edges := make([]types.Edge, 0, len(matches))
	for _, m := range matches {
		meta := metadata
		if multi {
			meta = maps.Clone(metadata)
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta[types.MetaMultiMatch] = true
		}
		edges = append(edges, types.Edge{
			SourceID:       sourceID,
			TargetID:       m.ID,
			Type:           edgeType,
			TargetResolved: true,
			Metadata:       meta,
		})
	}
	return edges
}
