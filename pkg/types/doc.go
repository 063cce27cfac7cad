// Package types provides the domain types shared across lorekeeper packages.
//
// Node and Edge form the knowledge graph. Nodes are namespaced by corpus
// (code, gamedata, client, docs) and edges carry one of a closed set of
// EdgeType values. Targets that have no node of their own are written as
// virtual references:
//
//	types.VirtualRef("particle", "Fire_Sparks") // "virtual:particle:Fire_Sparks"
//
// Cross-corpus names that could not be resolved yet are written as pending
// references and later rewritten by the healing sweep:
//
//	types.PendingRef(types.CorpusCode, "ChestBlock") // "pending:code:chestblock"
//
// Chunk is the boundary record produced by chunk sources, and RankedResult is
// what the query router returns.
package types
