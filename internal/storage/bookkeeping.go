package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/lorekeeper/pkg/types"
)

// LogIndexErrors appends rows to index_errors.
func (s *SQLiteStorage) LogIndexErrors(ctx context.Context, errs []IndexError) error {
	for _, e := range errs {
		_, err := s.q.ExecContext(ctx,
			"INSERT INTO index_errors (corpus, file, type, message, created_at) VALUES (?, ?, ?, ?, ?)",
			string(e.Corpus), e.File, e.Type, e.Message, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to log index error for %s: %w", e.File, err)
		}
	}
	return nil
}

// ClearIndexErrors drops logged errors for files that are being re-parsed.
func (s *SQLiteStorage) ClearIndexErrors(ctx context.Context, corpus types.Corpus, files []string) error {
	for _, batch := range batches(files, maxBatchParams) {
		args := append([]interface{}{string(corpus)}, toArgs(batch)...)
		_, err := s.q.ExecContext(ctx,
			"DELETE FROM index_errors WHERE corpus = ? AND file IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return fmt.Errorf("failed to clear index errors: %w", err)
		}
	}
	return nil
}

// ListIndexErrors returns the most recent errors of corpus.
func (s *SQLiteStorage) ListIndexErrors(ctx context.Context, corpus types.Corpus, limit int) ([]IndexError, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, corpus, file, type, message, created_at FROM index_errors
		WHERE corpus = ? ORDER BY id DESC LIMIT ?
	`, string(corpus), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list index errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IndexError
	for rows.Next() {
		var e IndexError
		var c string
		if err := rows.Scan(&e.ID, &c, &e.File, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Corpus = types.Corpus(c)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCorpusState returns the stored versions of corpus or ErrNotFound.
func (s *SQLiteStorage) GetCorpusState(ctx context.Context, corpus types.Corpus) (*CorpusState, error) {
	var st CorpusState
	var c string
	err := s.q.QueryRowContext(ctx,
		"SELECT corpus, taxonomy_version, text_builder_version, updated_at FROM corpus_state WHERE corpus = ?",
		string(corpus)).Scan(&c, &st.TaxonomyVersion, &st.TextBuilderVersion, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	st.Corpus = types.Corpus(c)
	return &st, nil
}

// SetCorpusState stores the versions a corpus was indexed with.
func (s *SQLiteStorage) SetCorpusState(ctx context.Context, state CorpusState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO corpus_state (corpus, taxonomy_version, text_builder_version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(corpus) DO UPDATE SET
			taxonomy_version = excluded.taxonomy_version,
			text_builder_version = excluded.text_builder_version,
			updated_at = excluded.updated_at
	`, string(state.Corpus), state.TaxonomyVersion, state.TextBuilderVersion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set corpus state: %w", err)
	}
	return nil
}

// WipeCorpus removes all nodes, owned edges, hashes and errors of corpus.
// Edges from other corpora that pointed at the removed nodes are kept and
// marked unresolved.
func (s *SQLiteStorage) WipeCorpus(ctx context.Context, corpus types.Corpus, owned []types.EdgeType) error {
	if _, err := s.ScopedDelete(ctx, OwnerFilter{AnyOwner: true}, owned); err != nil {
		return err
	}
	if _, err := s.q.ExecContext(ctx, `
		UPDATE edges SET target_resolved = 0
		WHERE target_resolved = 1 AND target_id IN (SELECT id FROM nodes WHERE corpus = ?)
	`, string(corpus)); err != nil {
		return fmt.Errorf("failed to mark edges unresolved: %w", err)
	}
	for _, stmt := range []string{
		"DELETE FROM nodes WHERE corpus = ?",
		"DELETE FROM file_hashes WHERE corpus = ?",
		"DELETE FROM index_errors WHERE corpus = ?",
		"DELETE FROM corpus_state WHERE corpus = ?",
	} {
		if _, err := s.q.ExecContext(ctx, stmt, string(corpus)); err != nil {
			return fmt.Errorf("failed to wipe corpus %s: %w", corpus, err)
		}
	}
	return nil
}

// CreateIndexRun records the start of a run.
func (s *SQLiteStorage) CreateIndexRun(ctx context.Context, run *IndexRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO index_runs (id, corpus, status, started_at) VALUES (?, ?, ?, ?)",
		run.ID, string(run.Corpus), string(run.Status), run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create index run: %w", err)
	}
	return nil
}

// FinishIndexRun stores the outcome and counters of a run.
func (s *SQLiteStorage) FinishIndexRun(ctx context.Context, run *IndexRun) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		UPDATE index_runs SET
			status = ?, finished_at = ?,
			files_added = ?, files_changed = ?, files_deleted = ?,
			nodes_written = ?, nodes_embedded = ?, edges_written = ?,
			parse_errors = ?, error_message = ?
		WHERE id = ?
	`, string(run.Status), run.FinishedAt,
		run.FilesAdded, run.FilesChanged, run.FilesDeleted,
		run.NodesWritten, run.NodesEmbedded, run.EdgesWritten,
		run.ParseErrors, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish index run: %w", err)
	}
	return nil
}

// LastIndexRun returns the most recently started run of corpus.
func (s *SQLiteStorage) LastIndexRun(ctx context.Context, corpus types.Corpus) (*IndexRun, error) {
	var (
		run        IndexRun
		c, status  string
		finishedAt sql.NullTime
		errMsg     sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, corpus, status, started_at, finished_at,
		       files_added, files_changed, files_deleted,
		       nodes_written, nodes_embedded, edges_written, parse_errors, error_message
		FROM index_runs WHERE corpus = ? ORDER BY started_at DESC LIMIT 1
	`, string(corpus)).Scan(&run.ID, &c, &status, &run.StartedAt, &finishedAt,
		&run.FilesAdded, &run.FilesChanged, &run.FilesDeleted,
		&run.NodesWritten, &run.NodesEmbedded, &run.EdgesWritten, &run.ParseErrors, &errMsg)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Corpus = types.Corpus(c)
	run.Status = RunStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.ErrorMessage = errMsg.String
	return &run, nil
}

// GetCorpusStats counts the rows that belong to corpus. Edges are attributed
// to the corpus of their source node.
func (s *SQLiteStorage) GetCorpusStats(ctx context.Context, corpus types.Corpus) (*CorpusStats, error) {
	stats := &CorpusStats{Corpus: corpus}
	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.Nodes, "SELECT COUNT(*) FROM nodes WHERE corpus = ?"},
		{&stats.EmbeddedNodes, "SELECT COUNT(*) FROM nodes WHERE corpus = ? AND embedding_dim > 0"},
		{&stats.Edges, "SELECT COUNT(*) FROM edges e JOIN nodes n ON n.id = e.source_id WHERE n.corpus = ?"},
		{&stats.DanglingEdges, `SELECT COUNT(*) FROM edges e JOIN nodes n ON n.id = e.source_id
			WHERE n.corpus = ? AND e.target_resolved = 0 AND e.target_id NOT LIKE 'virtual:%'`},
		{&stats.TrackedFiles, "SELECT COUNT(*) FROM file_hashes WHERE corpus = ?"},
		{&stats.IndexErrors, "SELECT COUNT(*) FROM index_errors WHERE corpus = ?"},
	}
	for _, c := range counts {
		if err := s.q.QueryRowContext(ctx, c.query, string(corpus)).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return stats, nil
}
