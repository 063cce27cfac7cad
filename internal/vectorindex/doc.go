// Package vectorindex holds the per-corpus approximate nearest neighbour
// indexes.
//
// Each corpus gets an HNSW graph (M=16, efConstruction=200, efSearch=100)
// over unit vectors, so scores are cosine similarities. An index is built in
// one shot from the embedded nodes of a corpus, in node id order. The
// snapshot stores the node id of every ordinal and a hit carries it, so a
// query resolves against the handle it holds even while a pass renumbers
// chunk indexes.
//
// On disk a corpus has two files under the index directory:
//
//	<corpus>.hnsw            msgpack snapshot of the graph, vectors and node ids
//	<corpus>.hnsw.meta.yaml  descriptor: provider_id, dimension, format_version
//
// The descriptor is checked before the snapshot is read. Any difference in
// provider, dimension or format returns ErrRebuildRequired; vectors from two
// embedding spaces are never mixed in one index.
package vectorindex
