package types

import (
	"fmt"
	"strings"
)

// EdgeType is the closed set of relationship kinds stored in the graph.
type EdgeType string

const (
	// Code structure
	EdgeExtends    EdgeType = "EXTENDS"
	EdgeImplements EdgeType = "IMPLEMENTS"
	EdgeContains   EdgeType = "CONTAINS"

	// Game data
	EdgeRequiresItem     EdgeType = "REQUIRES_ITEM"
	EdgeProducesItem     EdgeType = "PRODUCES_ITEM"
	EdgeDropsItem        EdgeType = "DROPS_ITEM"
	EdgeDropsOnDeath     EdgeType = "DROPS_ON_DEATH"
	EdgeOfferedInShop    EdgeType = "OFFERED_IN_SHOP"
	EdgeHasMember        EdgeType = "HAS_MEMBER"
	EdgeBelongsToGroup   EdgeType = "BELONGS_TO_GROUP"
	EdgeUsesBench        EdgeType = "USES_BENCH"
	EdgeRequiresResource EdgeType = "REQUIRES_RESOURCE"
	EdgeSpawnsParticle   EdgeType = "SPAWNS_PARTICLE"
	EdgeAppliesEffect    EdgeType = "APPLIES_EFFECT"
	EdgeSpawnsNPC        EdgeType = "SPAWNS_NPC"
	EdgeImplementedBy    EdgeType = "IMPLEMENTED_BY"

	// Cross-corpus references
	EdgeUIBindsTo      EdgeType = "UI_BINDS_TO"
	EdgeDocsReferences EdgeType = "DOCS_REFERENCES"
)

// AllEdgeTypes lists every edge type.
var AllEdgeTypes = []EdgeType{
	EdgeExtends, EdgeImplements, EdgeContains,
	EdgeRequiresItem, EdgeProducesItem, EdgeDropsItem, EdgeDropsOnDeath,
	EdgeOfferedInShop, EdgeHasMember, EdgeBelongsToGroup, EdgeUsesBench,
	EdgeRequiresResource, EdgeSpawnsParticle, EdgeAppliesEffect, EdgeSpawnsNPC,
	EdgeImplementedBy, EdgeUIBindsTo, EdgeDocsReferences,
}

// Valid reports whether t is part of the closed edge type set.
func (t EdgeType) Valid() bool {
	for _, known := range AllEdgeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEdgeType converts a name such as "drops_item" into an EdgeType.
func ParseEdgeType(name string) (EdgeType, error) {
	t := EdgeType(strings.ToUpper(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEdgeType, name)
	}
	return t, nil
}

// Edge is a directed, typed relationship between two node ids.
type Edge struct {
	SourceID       string         `json:"source_id"`
	TargetID       string         `json:"target_id"`
	Type           EdgeType       `json:"edge_type"`
	OwningFile     string         `json:"owning_file"`
	TargetResolved bool           `json:"target_resolved"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Metadata keys shared by extractors and the query layer.
const (
	MetaMultiMatch = "multi_match"
	MetaRole       = "role"
	MetaQuantity   = "quantity"
	MetaChance     = "chance"
	MetaCost       = "cost"
	MetaPendingFor = "pending_name"
)

const (
	virtualPrefix = "virtual:"
	pendingPrefix = "pending:"
)

// VirtualRef builds a synthetic target id for entities that have no node type.
func VirtualRef(kind, identifier string) string {
	return virtualPrefix + kind + ":" + identifier
}

// IsVirtualRef reports whether id is a virtual reference.
func IsVirtualRef(id string) bool {
	return strings.HasPrefix(id, virtualPrefix)
}

// PendingRef builds a placeholder target for a cross-corpus name that did not
// resolve yet. The healing sweep rewrites it once a matching node exists.
func PendingRef(corpus Corpus, name string) string {
	return pendingPrefix + string(corpus) + ":" + strings.ToLower(name)
}

// ParsePendingRef splits a pending reference into its corpus and name.
func ParsePendingRef(id string) (Corpus, string, bool) {
	rest, ok := strings.CutPrefix(id, pendingPrefix)
	if !ok {
		return "", "", false
	}
	corpus, name, ok := strings.Cut(rest, ":")
	if !ok || name == "" {
		return "", "", false
	}
	return Corpus(corpus), name, true
}
