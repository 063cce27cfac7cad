package extractor

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/pkg/types"
)

// TaxonomyVersion must be bumped whenever an extraction rule changes. A
// corpus indexed with a different version is wiped and rebuilt.
const TaxonomyVersion = "1.0.0"

// ErrParse marks a record whose content could not be decoded.
var ErrParse = errors.New("parse failure")

// Virtual reference kinds
const (
	KindParticle = "particle"
	KindBench    = "bench"
	KindEffect   = "effect"
	KindResource = "resource"
)

var ownedEdgeTypes = map[types.Corpus][]types.EdgeType{
	types.CorpusCode: {
		types.EdgeExtends, types.EdgeImplements, types.EdgeContains,
	},
	types.CorpusGamedata: {
		types.EdgeRequiresItem, types.EdgeProducesItem, types.EdgeDropsItem,
		types.EdgeDropsOnDeath, types.EdgeOfferedInShop, types.EdgeHasMember,
		types.EdgeBelongsToGroup, types.EdgeUsesBench, types.EdgeRequiresResource,
		types.EdgeSpawnsParticle, types.EdgeAppliesEffect, types.EdgeSpawnsNPC,
		types.EdgeImplementedBy,
	},
	types.CorpusClient: {types.EdgeUIBindsTo},
	types.CorpusDocs:   {types.EdgeDocsReferences},
}

// OwnedEdgeTypes is the allow-list of edge types written by the extractor of
// corpus. Scoped deletes for the corpus must use exactly this list.
func OwnedEdgeTypes(corpus types.Corpus) []types.EdgeType {
	return append([]types.EdgeType(nil), ownedEdgeTypes[corpus]...)
}

// Owns reports whether corpus's extractor writes edgeType.
func Owns(corpus types.Corpus, edgeType types.EdgeType) bool {
	for _, t := range ownedEdgeTypes[corpus] {
		if t == edgeType {
			return true
		}
	}
	return false
}

// collector accumulates edges from one record, dropping duplicates.
type collector struct {
	owningFile string
	seen       map[string]bool
	edges      []types.Edge
}

func newCollector(owningFile string) *collector {
	return &collector{owningFile: owningFile, seen: make(map[string]bool)}
}

func (c *collector) add(edges ...types.Edge) {
	for _, e := range edges {
		if e.SourceID == e.TargetID {
			continue
		}
		key := e.SourceID + "\x00" + e.TargetID + "\x00" + string(e.Type)
		if c.seen[key] {
			continue
		}
		c.seen[key] = true
		e.OwningFile = c.owningFile
		c.edges = append(c.edges, e)
	}
}

func virtualEdge(sourceID, kind, identifier string, edgeType types.EdgeType, metadata map[string]any) types.Edge {
	return types.Edge{
		SourceID:       sourceID,
		TargetID:       types.VirtualRef(kind, identifier),
		Type:           edgeType,
		TargetResolved: false,
		Metadata:       metadata,
	}
}

func pendingEdge(sourceID string, corpus types.Corpus, name string, edgeType types.EdgeType) types.Edge {
	return types.Edge{
		SourceID:       sourceID,
		TargetID:       types.PendingRef(corpus, name),
		Type:           edgeType,
		TargetResolved: false,
		Metadata:       map[string]any{types.MetaPendingFor: name},
	}
}

// Extract produces the edges owned by n's corpus. Only game data records can
// fail, with ErrParse, when their content is not a JSON object.
func Extract(n *types.Node, res *resolver.Resolver) ([]types.Edge, error) {
	var edges []types.Edge
	switch n.Corpus {
	case types.CorpusGamedata:
		rec, err := ParseRecord(n.ID, n.OwningFile, []byte(n.Content))
		if err != nil {
			return nil, err
		}
		rec.DataType = n.DataType
		edges = ExtractGamedataEdges(rec, res)
	case types.CorpusCode:
		edges = ExtractCodeEdges(n, res)
	case types.CorpusClient:
		edges = ExtractClientEdges(n, res)
	case types.CorpusDocs:
		edges = ExtractDocsEdges(n, res)
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCorpus, n.Corpus)
	}

	owned := edges[:0]
	for _, e := range edges {
		if Owns(n.Corpus, e.Type) {
			owned = append(owned, e)
		}
	}
	return owned, nil
}

// simpleName strips a package qualifier and generic arguments from a type
// name: "com.game.Chest<T>" becomes "Chest".
func simpleName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexAny(name, ".$"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// stemOf reduces an asset path such as "Icons/Items/Torch.png" to "Torch".
func stemOf(ref string) string {
	ref = strings.TrimSpace(ref)
	if strings.ContainsAny(ref, "/\\") || path.Ext(ref) != "" {
		return types.FileStem(ref)
	}
	return ref
}

// isTypeDecl accepts code entries that declare a type rather than a member.
func isTypeDecl(e resolver.Entry) bool {
	t := strings.ToLower(e.NodeType)
	return !strings.Contains(t, "method") && !strings.Contains(t, "field") && !strings.Contains(t, "constructor")
}

// ResolvePending retries a pending cross-corpus edge against res. It returns
// nil while the name is still unknown.
func ResolvePending(e types.Edge, res *resolver.Resolver) []types.Edge {
	corpus, name, ok := types.ParsePendingRef(e.TargetID)
	if !ok {
		return nil
	}
	var accept func(resolver.Entry) bool
	if corpus == types.CorpusCode {
		accept = isTypeDecl
	}
	meta := maps.Clone(e.Metadata)
	delete(meta, types.MetaPendingFor)
	found := res.Resolve(corpus, name, e.SourceID, e.Type, meta, accept)
	for i := range found {
		found[i].OwningFile = e.OwningFile
	}
	return found
}
