package extractor

import (
	"strings"

	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Metadata keys a code chunk source fills in for type declarations.
const (
	CodeMetaExtends    = "extends"
	CodeMetaImplements = "implements"
	CodeMetaContains   = "contains"
)

func metaStrings(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// ExtractCodeEdges reads the structural facts an external AST extractor
// stored in the node metadata. Unknown supertypes (library classes) produce
// no edge.
func ExtractCodeEdges(n *types.Node, res *resolver.Resolver) []types.Edge {
	c := newCollector(n.OwningFile)
	for _, super := range metaStrings(n.Metadata, CodeMetaExtends) {
		c.add(res.Resolve(types.CorpusCode, simpleName(super), n.ID, types.EdgeExtends, nil, isTypeDecl)...)
	}
	for _, iface := range metaStrings(n.Metadata, CodeMetaImplements) {
		c.add(res.Resolve(types.CorpusCode, simpleName(iface), n.ID, types.EdgeImplements, nil, isTypeDecl)...)
	}
	for _, member := range metaStrings(n.Metadata, CodeMetaContains) {
		// Members are usually given as node ids.
		if strings.Contains(member, ":") {
			c.add(types.Edge{SourceID: n.ID, TargetID: member, Type: types.EdgeContains, TargetResolved: true})
			continue
		}
		c.add(res.Resolve(types.CorpusCode, member, n.ID, types.EdgeContains, nil, nil)...)
	}
	return c.edges
}
