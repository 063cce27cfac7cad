// Package storage provides the SQLite graph store behind lorekeeper.
//
// The store manages:
//   - file_hashes: per-(corpus, file) content hashes and parse status
//   - nodes: namespaced knowledge units with their embedding vectors
//   - edges: typed directed relationships, keyed by (source, target, type)
//   - index_errors: records that failed to parse
//   - corpus_state: extractor and text builder versions per corpus
//   - index_runs: indexing history
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("lorekeeper.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.WithTx(ctx, func(tx storage.Tx) error {
//	    if _, err := tx.ScopedDelete(ctx, storage.OwnerFilter{Files: changed}, owned); err != nil {
//	        return err
//	    }
//	    return tx.UpsertEdges(ctx, edges)
//	})
//
// # Scoped Deletes
//
// ScopedDelete always takes an allow-list of edge types. Two corpora can own
// files with the same relative path, and a corpus must never remove edges
// written by another corpus's extractor, so an owner predicate alone is
// rejected with ErrEmptyAllowList.
//
// # Dangling Edges
//
// Edges have no foreign keys. When a node is deleted, edges pointing at it
// are marked target_resolved=0 with MarkTargetsUnresolved and kept. The
// healing sweep pages through them with ListDanglingEdges and re-attaches
// them with MarkEdgeResolved or ReplaceEdge.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// sqlite_vec tag switches to github.com/mattn/go-sqlite3 (cgo).
package storage
