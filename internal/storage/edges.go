package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dshills/lorekeeper/pkg/types"
)

const edgeColumns = "source_id, target_id, edge_type, owning_file, target_resolved, metadata"

func scanEdge(row rowScanner, extra ...interface{}) (types.Edge, error) {
	var (
		e        types.Edge
		edgeType string
		resolved int
		metadata sql.NullString
	)
	dest := append([]interface{}{&e.SourceID, &e.TargetID, &edgeType, &e.OwningFile, &resolved, &metadata}, extra...)
	if err := row.Scan(dest...); err != nil {
		return e, err
	}
	e.Type = types.EdgeType(edgeType)
	e.TargetResolved = resolved != 0
	e.Metadata = unmarshalMetadata(metadata)
	return e, nil
}

func collectEdges(rows *sql.Rows) ([]types.Edge, error) {
	defer func() { _ = rows.Close() }()
	var edges []types.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpsertEdges inserts edges, replacing owner, resolution and metadata of an
// existing (source, target, type) row.
func (s *SQLiteStorage) UpsertEdges(ctx context.Context, edges []types.Edge) error {
	query := `
		INSERT INTO edges (` + edgeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, edge_type) DO UPDATE SET
			owning_file = excluded.owning_file,
			target_resolved = excluded.target_resolved,
			metadata = excluded.metadata
	`
	for _, e := range edges {
		if e.SourceID == e.TargetID {
			continue
		}
		meta, err := marshalMetadata(e.Metadata)
		if err != nil {
			return fmt.Errorf("edge %s-%s->%s: %w", e.SourceID, e.Type, e.TargetID, err)
		}
		_, err = s.q.ExecContext(ctx, query,
			e.SourceID, e.TargetID, string(e.Type), e.OwningFile, boolInt(e.TargetResolved), meta)
		if err != nil {
			return fmt.Errorf("failed to upsert edge %s-%s->%s: %w", e.SourceID, e.Type, e.TargetID, err)
		}
	}
	return nil
}

// ScopedDelete removes edges owned by the filtered files whose type is in
// allow. Edge types outside allow are never touched, whatever their owner.
func (s *SQLiteStorage) ScopedDelete(ctx context.Context, owners OwnerFilter, allow []types.EdgeType) (int64, error) {
	if len(allow) == 0 {
		return 0, ErrEmptyAllowList
	}
	typeClause := "edge_type IN (" + placeholders(len(allow)) + ")"
	typeArgs := edgeTypeArgs(allow)

	if owners.AnyOwner {
		res, err := s.q.ExecContext(ctx, "DELETE FROM edges WHERE "+typeClause, typeArgs...)
		if err != nil {
			return 0, fmt.Errorf("failed to delete edges: %w", err)
		}
		return res.RowsAffected()
	}

	var total int64
	for _, batch := range batches(owners.Files, maxBatchParams-len(allow)) {
		args := append(toArgs(batch), typeArgs...)
		res, err := s.q.ExecContext(ctx,
			"DELETE FROM edges WHERE owning_file IN ("+placeholders(len(batch))+") AND "+typeClause, args...)
		if err != nil {
			return total, fmt.Errorf("failed to delete edges: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// MarkTargetsUnresolved flags every edge pointing at one of targetIDs as
// dangling so the healing sweep can re-attach it later.
func (s *SQLiteStorage) MarkTargetsUnresolved(ctx context.Context, targetIDs []string) (int64, error) {
	var total int64
	for _, batch := range batches(targetIDs, maxBatchParams) {
		res, err := s.q.ExecContext(ctx,
			"UPDATE edges SET target_resolved = 0 WHERE target_resolved = 1 AND target_id IN ("+placeholders(len(batch))+")",
			toArgs(batch)...)
		if err != nil {
			return total, fmt.Errorf("failed to mark edges unresolved: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func edgeTypeArgs(edgeTypes []types.EdgeType) []interface{} {
	args := make([]interface{}, len(edgeTypes))
	for i, t := range edgeTypes {
		args[i] = string(t)
	}
	return args
}

func edgeTypeFilter(column string, edgeTypes []types.EdgeType) (string, []interface{}) {
	if len(edgeTypes) == 0 {
		return "", nil
	}
	return " AND " + column + " IN (" + placeholders(len(edgeTypes)) + ")", edgeTypeArgs(edgeTypes)
}

// EdgesFrom returns outgoing edges of sourceID, optionally filtered by type.
func (s *SQLiteStorage) EdgesFrom(ctx context.Context, sourceID string, edgeTypes ...types.EdgeType) ([]types.Edge, error) {
	clause, typeArgs := edgeTypeFilter("edge_type", edgeTypes)
	args := append([]interface{}{sourceID}, typeArgs...)
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE source_id = ?"+clause+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	return collectEdges(rows)
}

// EdgesTo returns incoming edges of targetID, optionally filtered by type.
func (s *SQLiteStorage) EdgesTo(ctx context.Context, targetID string, edgeTypes ...types.EdgeType) ([]types.Edge, error) {
	clause, typeArgs := edgeTypeFilter("edge_type", edgeTypes)
	args := append([]interface{}{targetID}, typeArgs...)
	rows, err := s.q.QueryContext(ctx,
		"SELECT "+edgeColumns+" FROM edges WHERE target_id = ?"+clause+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	return collectEdges(rows)
}

// ListDanglingEdges pages through unresolved edges with rowid greater than
// afterRowID. Virtual references are excluded since they never resolve.
func (s *SQLiteStorage) ListDanglingEdges(ctx context.Context, afterRowID int64, limit int) ([]DanglingEdge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+edgeColumns+`, rowid FROM edges
		WHERE target_resolved = 0 AND target_id NOT LIKE 'virtual:%' AND rowid > ?
		ORDER BY rowid
		LIMIT ?
	`, afterRowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dangling edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DanglingEdge
	for rows.Next() {
		var d DanglingEdge
		e, err := scanEdge(rows, &d.RowID)
		if err != nil {
			return nil, err
		}
		d.Edge = e
		out = append(out, d)
	}
	return out, rows.Err()
}

// ReplaceEdge deletes old and inserts replacements in its place.
func (s *SQLiteStorage) ReplaceEdge(ctx context.Context, old types.Edge, replacements []types.Edge) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM edges WHERE source_id = ? AND target_id = ? AND edge_type = ?",
		old.SourceID, old.TargetID, string(old.Type))
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return s.UpsertEdges(ctx, replacements)
}

// MarkEdgeResolved sets target_resolved on a single edge.
func (s *SQLiteStorage) MarkEdgeResolved(ctx context.Context, e types.Edge) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE edges SET target_resolved = 1 WHERE source_id = ? AND target_id = ? AND edge_type = ?",
		e.SourceID, e.TargetID, string(e.Type))
	if err != nil {
		return fmt.Errorf("failed to mark edge resolved: %w", err)
	}
	return nil
}
