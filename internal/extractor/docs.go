package extractor

import (
	"regexp"
	"strings"

	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	wikiLinkPattern = regexp.MustCompile(`\[\[([^\]|#]+)(?:[|#][^\]]*)?\]\]`)
	codeSpanPattern = regexp.MustCompile("`([A-Za-z_][A-Za-z0-9_.$]*)(?:\\(\\))?`")
)

// resolveDocRef tries game data stems first and then code type names.
func resolveDocRef(n *types.Node, name string, res *resolver.Resolver, meta map[string]any) []types.Edge {
	candidates := []string{name}
	if u := strings.ReplaceAll(name, " ", "_"); u != name {
		candidates = append(candidates, u)
	}
	for _, cand := range candidates {
		if found := res.Resolve(types.CorpusGamedata, cand, n.ID, types.EdgeDocsReferences, meta, nil); len(found) > 0 {
			return found
		}
	}
	if found := res.Resolve(types.CorpusCode, simpleName(name), n.ID, types.EdgeDocsReferences, meta, isTypeDecl); len(found) > 0 {
		return found
	}
	return nil
}

// ExtractDocsEdges links documentation pages to the entities they mention.
// Wiki links are explicit references, so a miss is kept as a pending edge;
// a code span that matches nothing is ignored.
func ExtractDocsEdges(n *types.Node, res *resolver.Resolver) []types.Edge {
	c := newCollector(n.OwningFile)
	for _, m := range wikiLinkPattern.FindAllStringSubmatch(n.Content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		found := resolveDocRef(n, name, res, map[string]any{"via": "link"})
		if len(found) == 0 {
			c.add(pendingEdge(n.ID, types.CorpusGamedata, strings.ReplaceAll(name, " ", "_"), types.EdgeDocsReferences))
			continue
		}
		c.add(found...)
	}
	for _, m := range codeSpanPattern.FindAllStringSubmatch(n.Content, -1) {
		c.add(resolveDocRef(n, m[1], res, map[string]any{"via": "code"})...)
	}
	return c.edges
}
