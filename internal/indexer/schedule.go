package indexer

import (
	"fmt"
	"slices"

	"github.com/dshills/lorekeeper/pkg/types"
)

// CorpusDependencies lists, for each corpus, the corpora whose nodes its
// extractor resolves names against. A corpus is always indexed after its
// dependencies when both are part of the same run.
var CorpusDependencies = map[types.Corpus][]types.Corpus{
	types.CorpusCode:     nil,
	types.CorpusGamedata: {types.CorpusCode},
	types.CorpusClient:   {types.CorpusGamedata},
	types.CorpusDocs:     {types.CorpusGamedata, types.CorpusCode},
}

// Schedule orders corpora so every corpus follows the dependencies that are
// also requested. Ties keep the declaration order of types.AllCorpora.
// Duplicates are dropped.
func Schedule(corpora []types.Corpus) ([]types.Corpus, error) {
	want := make(map[types.Corpus]bool, len(corpora))
	for _, c := range corpora {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", types.ErrUnknownCorpus, c)
		}
		want[c] = true
	}

	order := make([]types.Corpus, 0, len(want))
	done := make(map[types.Corpus]bool, len(want))
	for len(order) < len(want) {
		progressed := false
		for _, c := range types.AllCorpora {
			if !want[c] || done[c] {
				continue
			}
			ready := true
			for _, dep := range CorpusDependencies[c] {
				if want[dep] && !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, c)
				done[c] = true
				progressed = true
			}
		}
		if !progressed {
			return nil, fmt.Errorf("corpus dependency cycle among %v", corpora)
		}
	}
	return order, nil
}

// lookupCorpora returns the corpora whose names the extractor of corpus
// resolves against: its dependencies and itself.
func lookupCorpora(corpus types.Corpus) []types.Corpus {
	return append(slices.Clone(CorpusDependencies[corpus]), corpus)
}
