package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/dshills/lorekeeper/internal/embedder"
	"github.com/dshills/lorekeeper/internal/extractor"
	"github.com/dshills/lorekeeper/internal/hashtracker"
	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/internal/source"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Phase names one step of a pass.
type Phase string

const (
	PhaseDetectChanges    Phase = "detect_changes"
	PhaseParse            Phase = "parse"
	PhaseFilterChanged    Phase = "filter_changed"
	PhaseEmbed            Phase = "embed"
	PhaseWriteGraphStore  Phase = "write_graph_store"
	PhaseBuildVectorIndex Phase = "build_vector_index"
	PhaseExtractEdges     Phase = "extract_edges"
	PhaseDone             Phase = "done"
)

// Index error types
const (
	ErrorTypeParse        = "parse"
	ErrorTypeInvalidChunk = "invalid_chunk"
)

// pass holds the state of one corpus pass as it moves through the phases.
type pass struct {
	idx    *Indexer
	src    source.Source
	corpus types.Corpus
	logger *slog.Logger
	run    *storage.IndexRun
	phase  Phase

	want    vectorindex.Descriptor
	rebuild bool

	current map[string]string
	cs      hashtracker.ChangeSet

	nodes     []*types.Node
	toEmbed   []*types.Node
	failed    map[string]bool
	parseErrs []storage.IndexError
}

func newPass(idx *Indexer, src source.Source) *pass {
	corpus := src.Corpus()
	return &pass{
		idx:    idx,
		src:    src,
		corpus: corpus,
		logger: idx.logger.With("corpus", corpus),
		run: &storage.IndexRun{
			ID:        uuid.NewString(),
			Corpus:    corpus,
			Status:    storage.RunRunning,
			StartedAt: time.Now().UTC(),
		},
		want: vectorindex.Descriptor{
			ProviderID: idx.embedder.ProviderID(),
			Dimension:  idx.embedder.Dimension(),
		},
		failed: make(map[string]bool),
	}
}

// execute walks the phases in order. Cancellation is checked before every
// phase; an unchanged corpus stops after DetectChanges.
func (p *pass) execute(ctx context.Context) error {
	p.phase = PhaseDetectChanges
	if err := p.checkVersions(ctx); err != nil {
		return err
	}
	if err := p.openIndex(); err != nil {
		return err
	}

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseDetectChanges, p.detectChanges},
		{PhaseParse, p.parse},
		{PhaseFilterChanged, p.filterChanged},
		{PhaseEmbed, p.embed},
		{PhaseWriteGraphStore, p.writeGraphStore},
		{PhaseBuildVectorIndex, p.buildVectorIndex},
		{PhaseExtractEdges, p.extractEdges},
		{PhaseDone, p.done},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.phase = step.phase
		start := time.Now()
		if err := step.fn(ctx); err != nil {
			return err
		}
		p.logger.Debug("phase.done", "phase", step.phase, "duration", time.Since(start))

		if step.phase == PhaseDetectChanges && !p.cs.HasChanges() {
			p.logger.Info("incremental.noop", "files", len(p.cs.Unchanged))
			p.run.Status = storage.RunNoop
			return p.saveState(ctx)
		}
	}
	return nil
}

// finish sets the terminal status of the run.
func (p *pass) finish(err error) {
	p.run.FinishedAt = time.Now().UTC()
	switch {
	case err == nil && p.run.Status == storage.RunRunning:
		p.run.Status = storage.RunSucceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.run.Status = storage.RunCancelled
		p.run.ErrorMessage = err.Error()
	case err != nil:
		p.run.Status = storage.RunFailed
		p.run.ErrorMessage = fmt.Sprintf("%s: %v", p.phase, err)
	}
}

// checkVersions wipes the corpus when it was indexed with another
// extraction taxonomy or text builder.
func (p *pass) checkVersions(ctx context.Context) error {
	state, err := p.idx.store.GetCorpusState(ctx, p.corpus)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sameVersion(state.TaxonomyVersion, extractor.TaxonomyVersion) &&
		sameVersion(state.TextBuilderVersion, source.TextBuilderVersion) {
		return nil
	}

	p.logger.Warn("corpus.wipe",
		"taxonomy", state.TaxonomyVersion, "want_taxonomy", extractor.TaxonomyVersion,
		"text_builder", state.TextBuilderVersion, "want_text_builder", source.TextBuilderVersion)
	err = p.idx.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.WipeCorpus(ctx, p.corpus, extractor.OwnedEdgeTypes(p.corpus))
	})
	if err != nil {
		return fmt.Errorf("wipe corpus: %w", err)
	}
	if err := p.idx.vectors.Remove(p.corpus); err != nil {
		return fmt.Errorf("remove vector index: %w", err)
	}
	return nil
}

// sameVersion compares two semver strings. Unparseable versions never match.
func sameVersion(stored, current string) bool {
	a, err := semver.NewVersion(stored)
	if err != nil {
		return false
	}
	b, err := semver.NewVersion(current)
	if err != nil {
		return false
	}
	return a.Equal(b)
}

// openIndex loads the persisted vector index. An index that is missing or
// was built for another provider forces every file to be re-processed.
func (p *pass) openIndex() error {
	err := p.idx.vectors.Open(p.corpus, p.want)
	if errors.Is(err, vectorindex.ErrRebuildRequired) {
		p.logger.Info("vector_index.rebuild", "reason", err)
		p.rebuild = true
		return nil
	}
	return err
}

func (p *pass) detectChanges(ctx context.Context) error {
	current, err := p.src.Hashes(ctx)
	if err != nil {
		return fmt.Errorf("scan source: %w", err)
	}
	cs, err := p.idx.tracker.Detect(ctx, p.corpus, current)
	if err != nil {
		return err
	}
	if p.rebuild {
		cs = cs.ForceAll()
	}
	p.current = current
	p.cs = cs
	p.run.FilesAdded = len(cs.Added)
	p.run.FilesChanged = len(cs.Changed)
	p.run.FilesDeleted = len(cs.Deleted)
	return nil
}

// parse turns the chunks of added and changed files into nodes. Records
// that cannot be parsed are logged to index_errors and skipped.
func (p *pass) parse(ctx context.Context) error {
	chunks, err := p.readChunks(ctx, p.cs.Reparse())
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}

	seen := make(map[string]bool, len(chunks))
	p.nodes = make([]*types.Node, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if err := c.Validate(); err != nil {
			p.recordError(c.RelativePath, ErrorTypeInvalidChunk, err)
			continue
		}
		if seen[c.ID] {
			p.recordError(c.RelativePath, ErrorTypeInvalidChunk, fmt.Errorf("%w: duplicate id %s", types.ErrInvalidChunk, c.ID))
			continue
		}
		seen[c.ID] = true

		n, err := p.node(c)
		if err != nil {
			p.recordError(c.RelativePath, ErrorTypeParse, err)
			continue
		}
		p.nodes = append(p.nodes, n)
	}
	p.run.NodesWritten = len(p.nodes)
	p.run.ParseErrors = len(p.parseErrs)
	return nil
}

func (p *pass) readChunks(ctx context.Context, paths []string) ([]types.Chunk, error) {
	rs, ok := p.src.(source.RejectingSource)
	if !ok {
		return p.src.Chunks(ctx, paths)
	}
	chunks, rejected, err := rs.ReadChunks(ctx, paths)
	if err != nil {
		return nil, err
	}
	for _, r := range rejected {
		errType := ErrorTypeParse
		if r.IsInvalidChunk() {
			errType = ErrorTypeInvalidChunk
		}
		p.recordError(r.Path, errType, r.Err)
	}
	return chunks, nil
}

func (p *pass) node(c *types.Chunk) (*types.Node, error) {
	n := &types.Node{
		ID:                c.ID,
		Corpus:            p.corpus,
		NodeType:          source.NodeType(p.corpus, c),
		DataType:          c.DeclaredType,
		DisplayName:       c.DisplayName,
		OwningFile:        c.RelativePath,
		Content:           c.RawContent,
		EmbeddingText:     c.EmbeddingText,
		EmbeddingTextHash: hashtracker.HashString(c.EmbeddingText),
		ChunkIndex:        -1,
		Metadata:          c.Metadata,
	}
	if n.DisplayName == "" {
		n.DisplayName = types.FileStem(c.RelativePath)
	}
	if p.corpus == types.CorpusGamedata {
		rec, err := extractor.ParseRecord(c.ID, c.RelativePath, []byte(c.RawContent))
		if err != nil {
			return nil, err
		}
		if n.DataType == "" {
			n.DataType = extractor.InferDataType(c.RelativePath, rec)
		}
	}
	return n, nil
}

func (p *pass) recordError(file, errType string, err error) {
	p.logger.Warn("parse.error", "file", file, "type", errType, "error", err)
	p.failed[file] = true
	p.parseErrs = append(p.parseErrs, storage.IndexError{
		Corpus:  p.corpus,
		File:    file,
		Type:    errType,
		Message: err.Error(),
	})
}

// filterChanged carries stored embeddings forward when the embedding text,
// provider and dimension are unchanged. Everything else is queued for
// embedding.
func (p *pass) filterChanged(ctx context.Context) error {
	existing, err := p.idx.store.ListNodesByOwningFiles(ctx, p.corpus, p.cs.Changed)
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Node, len(existing))
	for _, n := range existing {
		byID[n.ID] = n
	}

	p.toEmbed = p.toEmbed[:0]
	for _, n := range p.nodes {
		if n.EmbeddingText == "" {
			continue
		}
		if old, ok := byID[n.ID]; ok && p.reusable(old, n) {
			n.Embedding = old.Embedding
			n.EmbeddingProvider = old.EmbeddingProvider
			continue
		}
		p.toEmbed = append(p.toEmbed, n)
	}
	p.logger.Debug("filter.done", "nodes", len(p.nodes), "reused", len(p.nodes)-len(p.toEmbed), "embed", len(p.toEmbed))
	return nil
}

func (p *pass) reusable(old, n *types.Node) bool {
	return old.HasEmbedding() &&
		old.EmbeddingTextHash == n.EmbeddingTextHash &&
		old.EmbeddingProvider == p.want.ProviderID &&
		len(old.Embedding) == p.want.Dimension
}

// embed runs the provider preflight once and then embeds sequential
// batches. Any failure aborts the corpus before anything is written.
func (p *pass) embed(ctx context.Context) error {
	if len(p.toEmbed) == 0 {
		return nil
	}
	emb := p.idx.embedder
	if err := emb.Validate(ctx); err != nil {
		return fmt.Errorf("embedding preflight: %w", err)
	}

	size := p.idx.opts.BatchSize
	for start := 0; start < len(p.toEmbed); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := p.toEmbed[start:min(start+size, len(p.toEmbed))]
		texts := make([]string, len(batch))
		for i, n := range batch {
			texts[i] = n.EmbeddingText
		}

		resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(resp.Embeddings) != len(batch) {
			return fmt.Errorf("%w: got %d embeddings for %d texts", embedder.ErrProviderFailed, len(resp.Embeddings), len(batch))
		}
		for i, n := range batch {
			e := resp.Embeddings[i]
			if e == nil || len(e.Vector) != p.want.Dimension {
				return fmt.Errorf("%w: %s", embedder.ErrDimensionMismatch, n.ID)
			}
			n.Embedding = e.Vector
			n.EmbeddingProvider = p.want.ProviderID
		}
		p.logger.Debug("embed.batch", "start", start, "size", len(batch), "total", len(p.toEmbed))
	}
	p.run.NodesEmbedded = len(p.toEmbed)
	return nil
}

// writeGraphStore replaces the nodes of every stale file in one
// transaction. Edges pointing at nodes that disappeared are marked
// unresolved rather than deleted, since another corpus may own them.
func (p *pass) writeGraphStore(ctx context.Context) error {
	written := make(map[string]bool, len(p.nodes))
	for _, n := range p.nodes {
		written[n.ID] = true
	}
	touched := append(p.cs.Reparse(), p.cs.Deleted...)

	return p.idx.store.WithTx(ctx, func(tx storage.Tx) error {
		deleted, err := tx.DeleteNodesByOwningFile(ctx, p.corpus, p.cs.Stale())
		if err != nil {
			return err
		}
		var gone []string
		for _, id := range deleted {
			if !written[id] {
				gone = append(gone, id)
			}
		}
		if len(gone) > 0 {
			if _, err := tx.MarkTargetsUnresolved(ctx, gone); err != nil {
				return err
			}
		}
		if err := tx.UpsertNodes(ctx, p.nodes); err != nil {
			return err
		}
		if err := tx.ClearIndexErrors(ctx, p.corpus, touched); err != nil {
			return err
		}
		return tx.LogIndexErrors(ctx, p.parseErrs)
	})
}

// buildVectorIndex rebuilds the corpus index from every stored embedding.
// Ordinals follow id order. The index carries its own ids, so it is
// published first and the chunk indexes are written back after.
func (p *pass) buildVectorIndex(ctx context.Context) error {
	embedded, err := p.idx.store.ListEmbeddedNodes(ctx, p.corpus)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(embedded))
	vectors := make([][]float32, 0, len(embedded))
	for _, e := range embedded {
		if e.Provider != p.want.ProviderID || len(e.Vector) != p.want.Dimension {
			p.logger.Warn("vector_index.skip", "node", e.ID, "provider", e.Provider, "dimension", len(e.Vector))
			continue
		}
		ids = append(ids, e.ID)
		vectors = append(vectors, e.Vector)
	}

	ix, err := p.idx.vectors.Build(p.corpus, p.want, ids, vectors)
	if err != nil {
		return fmt.Errorf("build vector index: %w", err)
	}
	p.logger.Debug("vector_index.built", "count", ix.Len(), "dimension", ix.Descriptor().Dimension)

	return p.idx.store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.AssignChunkIndexes(ctx, p.corpus, ids)
	})
}

// extractEdges re-extracts the edges owned by this corpus. When files were
// added or deleted the name lookups changed, so every record is revisited;
// otherwise only the re-parsed files are. The scoped delete covers exactly
// the revisited owners and the corpus's own edge types.
func (p *pass) extractEdges(ctx context.Context) error {
	res, err := resolver.Build(ctx, p.idx.store, lookupCorpora(p.corpus)...)
	if err != nil {
		return err
	}

	var nodes []*types.Node
	if len(p.cs.Added) > 0 || len(p.cs.Deleted) > 0 {
		nodes, err = p.idx.store.ListNodesByCorpus(ctx, p.corpus)
	} else {
		nodes, err = p.idx.store.ListNodesByOwningFiles(ctx, p.corpus, p.cs.Reparse())
	}
	if err != nil {
		return err
	}

	owners := make(map[string]bool, len(nodes))
	for _, f := range p.cs.Stale() {
		owners[f] = true
	}
	for _, f := range p.cs.Reparse() {
		owners[f] = true
	}

	var edges []types.Edge
	for _, n := range nodes {
		owners[n.OwningFile] = true
		found, err := extractor.Extract(n, res)
		if err != nil {
			p.logger.Warn("extract.error", "node", n.ID, "error", err)
			continue
		}
		edges = append(edges, found...)
	}

	files := make([]string, 0, len(owners))
	for f := range owners {
		files = append(files, f)
	}
	sort.Strings(files)

	return p.idx.healer.exclusive(func() error {
		return p.idx.store.WithTx(ctx, func(tx storage.Tx) error {
			removed, err := tx.ScopedDelete(ctx, storage.OwnerFilter{Files: files}, extractor.OwnedEdgeTypes(p.corpus))
			if err != nil {
				return err
			}
			if err := tx.UpsertEdges(ctx, edges); err != nil {
				return err
			}
			p.run.EdgesWritten = len(edges)
			p.logger.Debug("edges.replaced", "owners", len(files), "removed", removed, "written", len(edges))
			return nil
		})
	})
}

// done commits the file hashes. It runs only after every graph mutation of
// the pass has committed, so a crash before it makes the next pass redo
// the same files.
func (p *pass) done(ctx context.Context) error {
	if err := p.idx.tracker.Commit(ctx, p.corpus, p.cs, p.current, p.failed); err != nil {
		return err
	}
	return p.saveState(ctx)
}

func (p *pass) saveState(ctx context.Context) error {
	return p.idx.store.SetCorpusState(ctx, storage.CorpusState{
		Corpus:             p.corpus,
		TaxonomyVersion:    extractor.TaxonomyVersion,
		TextBuilderVersion: source.TextBuilderVersion,
	})
}
