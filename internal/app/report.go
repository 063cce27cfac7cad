package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/lorekeeper/internal/indexer"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrNodeNotFound is returned by Node for an unknown id.
var ErrNodeNotFound = errors.New("node not found")

// RunReport is the outcome of one corpus in an indexing run.
type RunReport struct {
	Corpus        types.Corpus `json:"corpus"`
	Status        string       `json:"status"`
	RunID         string       `json:"run_id,omitempty"`
	FilesAdded    int          `json:"files_added"`
	FilesChanged  int          `json:"files_changed"`
	FilesDeleted  int          `json:"files_deleted"`
	NodesWritten  int          `json:"nodes_written"`
	NodesEmbedded int          `json:"nodes_embedded"`
	EdgesWritten  int          `json:"edges_written"`
	ParseErrors   int          `json:"parse_errors"`
	DurationMS    int64        `json:"duration_ms"`
	Error         string       `json:"error,omitempty"`
}

// StatusReport describes the indexed state of one corpus.
type StatusReport struct {
	Corpus             types.Corpus            `json:"corpus"`
	Configured         bool                    `json:"configured"`
	Indexing           bool                    `json:"indexing"`
	Nodes              int                     `json:"nodes"`
	EmbeddedNodes      int                     `json:"embedded_nodes"`
	Edges              int                     `json:"edges"`
	DanglingEdges      int                     `json:"dangling_edges"`
	TrackedFiles       int                     `json:"tracked_files"`
	IndexErrors        int                     `json:"index_errors"`
	TaxonomyVersion    string                  `json:"taxonomy_version,omitempty"`
	TextBuilderVersion string                  `json:"text_builder_version,omitempty"`
	LastRun            *RunReport              `json:"last_run,omitempty"`
	VectorIndex        *vectorindex.Descriptor `json:"vector_index,omitempty"`
}

// NodeReport is a node with its incident edges.
type NodeReport struct {
	Node     *types.Node  `json:"node"`
	Outgoing []types.Edge `json:"outgoing,omitempty"`
	Incoming []types.Edge `json:"incoming,omitempty"`
}

// Index runs the orchestrator over corpora, or every configured corpus when
// none is given. The returned bool is true when any corpus failed.
func (a *App) Index(ctx context.Context, corpora ...types.Corpus) ([]RunReport, bool, error) {
	results, err := a.Indexer.Run(ctx, corpora...)
	if err != nil {
		return nil, false, err
	}
	reports := make([]RunReport, 0, len(results))
	for _, r := range results {
		reports = append(reports, runReport(r))
	}
	return reports, indexer.Failed(results), nil
}

func runReport(r indexer.CorpusResult) RunReport {
	rep := RunReport{Corpus: r.Corpus, DurationMS: r.Duration.Milliseconds()}
	if r.Run != nil {
		rep = fromRun(r.Run)
		rep.DurationMS = r.Duration.Milliseconds()
	}
	switch {
	case r.Skipped:
		rep.Status = "skipped"
	case r.Err != nil:
		rep.Status = string(storage.RunFailed)
	}
	if r.Err != nil {
		rep.Error = r.Err.Error()
	}
	return rep
}

func fromRun(run *storage.IndexRun) RunReport {
	rep := RunReport{
		Corpus:        run.Corpus,
		Status:        string(run.Status),
		RunID:         run.ID,
		FilesAdded:    run.FilesAdded,
		FilesChanged:  run.FilesChanged,
		FilesDeleted:  run.FilesDeleted,
		NodesWritten:  run.NodesWritten,
		NodesEmbedded: run.NodesEmbedded,
		EdgesWritten:  run.EdgesWritten,
		ParseErrors:   run.ParseErrors,
		Error:         run.ErrorMessage,
	}
	if !run.FinishedAt.IsZero() {
		rep.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}
	return rep
}

// Status reports corpus, or every corpus when corpus is empty.
func (a *App) Status(ctx context.Context, corpus types.Corpus) ([]StatusReport, error) {
	var statuses []indexer.CorpusStatus
	if corpus == "" {
		all, err := a.Indexer.Status(ctx)
		if err != nil {
			return nil, err
		}
		statuses = all
	} else {
		st, err := a.Indexer.CorpusStatus(ctx, corpus)
		if err != nil {
			return nil, err
		}
		statuses = []indexer.CorpusStatus{*st}
	}

	out := make([]StatusReport, 0, len(statuses))
	for _, st := range statuses {
		rep := StatusReport{
			Corpus:      st.Corpus,
			Configured:  st.Configured,
			Indexing:    st.Indexing,
			VectorIndex: st.Index,
		}
		if st.Stats != nil {
			rep.Nodes = st.Stats.Nodes
			rep.EmbeddedNodes = st.Stats.EmbeddedNodes
			rep.Edges = st.Stats.Edges
			rep.DanglingEdges = st.Stats.DanglingEdges
			rep.TrackedFiles = st.Stats.TrackedFiles
			rep.IndexErrors = st.Stats.IndexErrors
		}
		if st.State != nil {
			rep.TaxonomyVersion = st.State.TaxonomyVersion
			rep.TextBuilderVersion = st.State.TextBuilderVersion
		}
		if st.LastRun != nil {
			run := fromRun(st.LastRun)
			rep.LastRun = &run
		}
		out = append(out, rep)
	}
	return out, nil
}

// Node looks up a node by id. Edges are loaded when withEdges is set.
func (a *App) Node(ctx context.Context, id string, withEdges bool) (*NodeReport, error) {
	n, err := a.Store.GetNode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	rep := &NodeReport{Node: n}
	if !withEdges {
		return rep, nil
	}
	if rep.Outgoing, err = a.Store.EdgesFrom(ctx, id); err != nil {
		return nil, err
	}
	if rep.Incoming, err = a.Store.EdgesTo(ctx, id); err != nil {
		return nil, err
	}
	return rep, nil
}
