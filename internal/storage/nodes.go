package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dshills/lorekeeper/pkg/types"
)

const nodeColumns = `id, corpus, node_type, data_type, display_name, owning_file, content,
	embedding_text, embedding_text_hash, chunk_index, embedding, embedding_provider,
	metadata, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*types.Node, error) {
	var (
		n          types.Node
		corpus     string
		dataType   sql.NullString
		content    sql.NullString
		embText    sql.NullString
		embHash    sql.NullString
		chunkIndex sql.NullInt64
		embedding  []byte
		provider   sql.NullString
		metadata   sql.NullString
		updatedAt  sql.NullTime
	)
	err := row.Scan(&n.ID, &corpus, &n.NodeType, &dataType, &n.DisplayName, &n.OwningFile,
		&content, &embText, &embHash, &chunkIndex, &embedding, &provider, &metadata, &updatedAt)
	if err != nil {
		return nil, err
	}
	n.Corpus = types.Corpus(corpus)
	n.DataType = dataType.String
	n.Content = content.String
	n.EmbeddingText = embText.String
	n.EmbeddingTextHash = embHash.String
	n.ChunkIndex = -1
	if chunkIndex.Valid {
		n.ChunkIndex = int(chunkIndex.Int64)
	}
	if len(embedding) > 0 {
		n.Embedding = DeserializeVector(embedding)
	}
	n.EmbeddingProvider = provider.String
	n.Metadata = unmarshalMetadata(metadata)
	if updatedAt.Valid {
		n.UpdatedAt = updatedAt.Time
	}
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]*types.Node, error) {
	defer func() { _ = rows.Close() }()
	var nodes []*types.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// UpsertNodes inserts or replaces nodes keyed by id. The last write wins.
func (s *SQLiteStorage) UpsertNodes(ctx context.Context, nodes []*types.Node) error {
	query := `
		INSERT INTO nodes (` + nodeColumns + `, embedding_dim)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			corpus = excluded.corpus,
			node_type = excluded.node_type,
			data_type = excluded.data_type,
			display_name = excluded.display_name,
			owning_file = excluded.owning_file,
			content = excluded.content,
			embedding_text = excluded.embedding_text,
			embedding_text_hash = excluded.embedding_text_hash,
			chunk_index = excluded.chunk_index,
			embedding = excluded.embedding,
			embedding_provider = excluded.embedding_provider,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at,
			embedding_dim = excluded.embedding_dim
	`
	now := time.Now().UTC()
	for _, n := range nodes {
		meta, err := marshalMetadata(n.Metadata)
		if err != nil {
			return fmt.Errorf("node %s: %w", n.ID, err)
		}
		var chunkIndex interface{}
		if n.ChunkIndex >= 0 {
			chunkIndex = n.ChunkIndex
		}
		var embedding []byte
		if n.HasEmbedding() {
			embedding = SerializeVector(n.Embedding)
		}
		_, err = s.q.ExecContext(ctx, query,
			n.ID, string(n.Corpus), n.NodeType, n.DataType, n.DisplayName, n.OwningFile, n.Content,
			n.EmbeddingText, n.EmbeddingTextHash, chunkIndex, embedding, n.EmbeddingProvider,
			meta, now, len(n.Embedding))
		if err != nil {
			return fmt.Errorf("failed to upsert node %s: %w", n.ID, err)
		}
		n.UpdatedAt = now
	}
	return nil
}

// GetNode retrieves a node by id
func (s *SQLiteStorage) GetNode(ctx context.Context, id string) (*types.Node, error) {
	row := s.q.QueryRowContext(ctx, "SELECT "+nodeColumns+" FROM nodes WHERE id = ?", id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// NodesExist reports which of ids are present in the nodes table.
func (s *SQLiteStorage) NodesExist(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	for _, batch := range batches(ids, maxBatchParams) {
		rows, err := s.q.QueryContext(ctx,
			"SELECT id FROM nodes WHERE id IN ("+placeholders(len(batch))+")", toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to check nodes: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			found[id] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// DeleteNodesByOwningFile removes every node of corpus owned by one of paths
// and returns the removed ids. Edges are left in place; callers decide
// whether they are deleted or marked unresolved.
func (s *SQLiteStorage) DeleteNodesByOwningFile(ctx context.Context, corpus types.Corpus, paths []string) ([]string, error) {
	var deleted []string
	for _, batch := range batches(paths, maxBatchParams) {
		args := append([]interface{}{string(corpus)}, toArgs(batch)...)
		rows, err := s.q.QueryContext(ctx,
			"DELETE FROM nodes WHERE corpus = ? AND owning_file IN ("+placeholders(len(batch))+") RETURNING id", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to delete nodes: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, err
			}
			deleted = append(deleted, id)
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return deleted, nil
}

// ListNodesByOwningFiles returns the nodes of corpus owned by paths.
func (s *SQLiteStorage) ListNodesByOwningFiles(ctx context.Context, corpus types.Corpus, paths []string) ([]*types.Node, error) {
	var nodes []*types.Node
	for _, batch := range batches(paths, maxBatchParams) {
		args := append([]interface{}{string(corpus)}, toArgs(batch)...)
		rows, err := s.q.QueryContext(ctx,
			"SELECT "+nodeColumns+" FROM nodes WHERE corpus = ? AND owning_file IN ("+placeholders(len(batch))+") ORDER BY id", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list nodes: %w", err)
		}
		got, err := collectNodes(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, got...)
	}
	return nodes, nil
}

// ListNodesByCorpus returns every node of corpus ordered by id.
func (s *SQLiteStorage) ListNodesByCorpus(ctx context.Context, corpus types.Corpus) ([]*types.Node, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+nodeColumns+" FROM nodes WHERE corpus = ? ORDER BY id", string(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return collectNodes(rows)
}

// ListNameEntries returns the id and display name of every node in corpus.
func (s *SQLiteStorage) ListNameEntries(ctx context.Context, corpus types.Corpus) ([]NameEntry, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, display_name, node_type, data_type FROM nodes WHERE corpus = ? ORDER BY id", string(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to list names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []NameEntry
	for rows.Next() {
		var e NameEntry
		var dataType sql.NullString
		if err := rows.Scan(&e.ID, &e.DisplayName, &e.NodeType, &dataType); err != nil {
			return nil, err
		}
		e.DataType = dataType.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// FindNodesByDisplayName matches display names case-insensitively. An empty
// corpus searches all corpora.
func (s *SQLiteStorage) FindNodesByDisplayName(ctx context.Context, corpus types.Corpus, name string) ([]*types.Node, error) {
	query := "SELECT " + nodeColumns + " FROM nodes WHERE display_name = ?"
	args := []interface{}{name}
	if corpus != "" {
		query += " AND corpus = ?"
		args = append(args, string(corpus))
	}
	query += " ORDER BY id"
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes: %w", err)
	}
	return collectNodes(rows)
}

// ListEmbeddedNodes returns the vectors of corpus in id order, which is the
// order the vector index is built in.
func (s *SQLiteStorage) ListEmbeddedNodes(ctx context.Context, corpus types.Corpus) ([]EmbeddedNode, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, embedding, embedding_provider FROM nodes
		WHERE corpus = ? AND embedding IS NOT NULL AND embedding_dim > 0
		ORDER BY id
	`, string(corpus))
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EmbeddedNode
	for rows.Next() {
		var (
			e        EmbeddedNode
			blob     []byte
			provider sql.NullString
		)
		if err := rows.Scan(&e.ID, &blob, &provider); err != nil {
			return nil, err
		}
		e.Vector = DeserializeVector(blob)
		e.Provider = provider.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// AssignChunkIndexes clears every chunk index in corpus and then numbers ids
// in slice order. The numbers mirror positions in the published vector
// index; search resolves hits through the index itself.
func (s *SQLiteStorage) AssignChunkIndexes(ctx context.Context, corpus types.Corpus, ids []string) error {
	if _, err := s.q.ExecContext(ctx, "UPDATE nodes SET chunk_index = NULL WHERE corpus = ?", string(corpus)); err != nil {
		return fmt.Errorf("failed to clear chunk indexes: %w", err)
	}
	for i, id := range ids {
		if _, err := s.q.ExecContext(ctx, "UPDATE nodes SET chunk_index = ? WHERE id = ?", i, id); err != nil {
			return fmt.Errorf("failed to assign chunk index for %s: %w", id, err)
		}
	}
	return nil
}

// GetNodes loads the nodes with the given ids. Missing ids are absent from
// the result.
func (s *SQLiteStorage) GetNodes(ctx context.Context, ids []string) (map[string]*types.Node, error) {
	out := make(map[string]*types.Node, len(ids))
	for _, batch := range batches(ids, maxBatchParams) {
		rows, err := s.q.QueryContext(ctx,
			"SELECT "+nodeColumns+" FROM nodes WHERE id IN ("+placeholders(len(batch))+")", toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("failed to get nodes: %w", err)
		}
		nodes, err := collectNodes(rows)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			out[n.ID] = n
		}
	}
	return out, nil
}
