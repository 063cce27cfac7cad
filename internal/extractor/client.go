package extractor

import (
	"regexp"

	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/pkg/types"
)

// bindingPattern matches attributes in UI markup that point at game data,
// e.g. `ItemId: "Torch"` or `Icon = "Icons/Items/Torch.png"`.
var bindingPattern = regexp.MustCompile(`(?i)\b(ItemId|Item|Icon|Binding|DataSource|Entity)\s*[:=]\s*"([^"]+)"`)

// ExtractClientEdges links UI definitions to the game data they display. A
// binding with no matching record is kept as a pending edge, since game data
// may be re-indexed after the client files.
func ExtractClientEdges(n *types.Node, res *resolver.Resolver) []types.Edge {
	c := newCollector(n.OwningFile)
	for _, m := range bindingPattern.FindAllStringSubmatch(n.Content, -1) {
		stem := stemOf(m[2])
		if stem == "" {
			continue
		}
		meta := map[string]any{"attribute": m[1]}
		found := res.Resolve(types.CorpusGamedata, stem, n.ID, types.EdgeUIBindsTo, meta, nil)
		if len(found) == 0 {
			e := pendingEdge(n.ID, types.CorpusGamedata, stem, types.EdgeUIBindsTo)
			e.Metadata["attribute"] = m[1]
			c.add(e)
			continue
		}
		c.add(found...)
	}
	return c.edges
}
