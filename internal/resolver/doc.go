// Package resolver maps names found in records to node ids.
//
// Game data records reference each other by filename stem, so the primary
// lookup is display name (which equals the stem for game data) to node ids:
//
//	res, err := resolver.Build(ctx, store, types.CorpusGamedata, types.CorpusCode)
//	edges := res.ResolveStem("Wood_Stick", torchID, types.EdgeRequiresItem, nil)
//
// Resolution never fails. An unknown name produces no edges, and a name
// shared by several nodes produces one edge per node, each flagged
// multi_match.
package resolver
