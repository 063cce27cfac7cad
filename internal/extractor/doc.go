// Package extractor turns indexed nodes into typed edges.
//
// There is one pure function per record type (ExtractItemEdges,
// ExtractRecipeEdges, ExtractDropEdges, ...). Each reads documented field
// paths from a Record and resolves the names it finds through a
// resolver.Resolver:
//
//	item    Recipe.Input[].ItemId                  REQUIRES_ITEM
//	recipe  PrimaryOutput.ItemId                   PRODUCES_ITEM {role: primary}
//	drop    Container (recursive) Item.ItemId      DROPS_ITEM
//	npc     DropList | Drops                       DROPS_ON_DEATH
//	shop    TradeSlots[].Trade(s).Output.ItemId    OFFERED_IN_SHOP {cost}
//	group   Members[]                              HAS_MEMBER + BELONGS_TO_GROUP
//
// Missing or malformed fields produce no edges. Entities that have no node
// type of their own (particles, benches, effects, resource types) become
// virtual references.
//
// Each corpus owns a fixed set of edge types, returned by OwnedEdgeTypes.
// The sets are disjoint, and the indexer uses them as the allow-list for
// scoped deletes.
package extractor
