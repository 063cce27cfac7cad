// Package indexer runs incremental indexing passes over the configured
// corpora.
//
// A pass over one corpus moves through fixed phases:
//
//  1. DetectChanges: hash the source and compare with the stored hashes.
//     An unchanged corpus stops here.
//  2. Parse: build nodes for added and changed files. Records that do not
//     parse are logged to index_errors and skipped.
//  3. FilterChanged: keep stored embeddings whose text, provider and
//     dimension are unchanged.
//  4. Embed: embed the rest in sequential batches.
//  5. WriteGraphStore: replace the nodes of stale files in one transaction.
//  6. BuildVectorIndex: rebuild the corpus ANN index from every embedding.
//  7. ExtractEdges: rebuild the corpus's own edge types for the affected
//     owners.
//  8. Done: commit file hashes and versions.
//
// Corpora run in the order given by CorpusDependencies, one pass per
// corpus at a time. After each pass the Healer re-resolves dangling edges,
// inline for one-shot runs or in a background worker for long-lived
// servers.
//
//	idx := indexer.New(store, sources, emb, vectors, indexer.Options{})
//	results, err := idx.Run(ctx)
package indexer
