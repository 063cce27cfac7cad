package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/lorekeeper/pkg/types"
)

// GetFileHashes returns path→hash for every tracked file of corpus.
func (s *SQLiteStorage) GetFileHashes(ctx context.Context, corpus types.Corpus) (map[string]string, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT path, hash FROM file_hashes WHERE corpus = ?", string(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to read file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// ListFileHashes returns the full file_hashes rows of corpus ordered by path.
func (s *SQLiteStorage) ListFileHashes(ctx context.Context, corpus types.Corpus) ([]FileHash, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT corpus, path, hash, status, last_indexed FROM file_hashes WHERE corpus = ? ORDER BY path", string(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to list file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []FileHash
	for rows.Next() {
		var (
			fh          FileHash
			c, status   string
			lastIndexed sql.NullTime
		)
		if err := rows.Scan(&c, &fh.Path, &fh.Hash, &status, &lastIndexed); err != nil {
			return nil, err
		}
		fh.Corpus = types.Corpus(c)
		fh.Status = FileStatus(status)
		if lastIndexed.Valid {
			fh.LastIndexed = lastIndexed.Time
		}
		out = append(out, fh)
	}
	return out, rows.Err()
}

// UpdateHashes records the hashes of files whose graph mutations committed.
func (s *SQLiteStorage) UpdateHashes(ctx context.Context, corpus types.Corpus, hashes []FileHash) error {
	query := `
		INSERT INTO file_hashes (corpus, path, hash, status, last_indexed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(corpus, path) DO UPDATE SET
			hash = excluded.hash,
			status = excluded.status,
			last_indexed = excluded.last_indexed
	`
	now := time.Now().UTC()
	for _, h := range hashes {
		status := h.Status
		if status == "" {
			status = FileIndexed
		}
		if _, err := s.q.ExecContext(ctx, query, string(corpus), h.Path, h.Hash, string(status), now); err != nil {
			return fmt.Errorf("failed to update hash for %s: %w", h.Path, err)
		}
	}
	return nil
}

// RemoveHashes stops tracking paths in corpus.
func (s *SQLiteStorage) RemoveHashes(ctx context.Context, corpus types.Corpus, paths []string) error {
	for _, batch := range batches(paths, maxBatchParams) {
		args := append([]interface{}{string(corpus)}, toArgs(batch)...)
		_, err := s.q.ExecContext(ctx,
			"DELETE FROM file_hashes WHERE corpus = ? AND path IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return fmt.Errorf("failed to remove hashes: %w", err)
		}
	}
	return nil
}
