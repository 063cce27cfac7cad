package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/pkg/types"
)

func corpusNames() []string {
	names := make([]string, 0, len(types.AllCorpora))
	for _, c := range types.AllCorpora {
		names = append(names, string(c))
	}
	return names
}

// indexCorpusTool returns the tool definition for index_corpus
func indexCorpusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_corpus",
		Description: "Incrementally index one or more corpora. Corpora run in dependency order: code, gamedata, client, docs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"corpora": map[string]interface{}{
					"type":        "array",
					"description": "Corpora to index. Omit to index every configured corpus",
					"items": map[string]interface{}{
						"type": "string",
						"enum": corpusNames(),
					},
				},
			},
		},
	}
}

// searchTool returns the tool definition for search
func searchTool() mcp.Tool {
	return mcp.Tool{
		Name: "search",
		Description: "Search the knowledge graph. Relationship questions (\"what drops from goblin\", " +
			"\"what uses wood stick\") walk typed edges; other queries use semantic similarity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or relationship question)",
				},
				"corpora": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to these corpora",
					"items": map[string]interface{}{
						"type": "string",
						"enum": corpusNames(),
					},
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "auto classifies the query, semantic skips classification, structural forces graph traversal",
					"enum":        []string{string(searcher.ModeAuto), string(searcher.ModeSemantic), string(searcher.ModeStructural)},
					"default":     string(searcher.ModeAuto),
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     searcher.DefaultLimit,
					"minimum":     1,
					"maximum":     searcher.MaxLimit,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report node, edge and dangling-edge counts, the last run and the vector index of each corpus",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"corpus": map[string]interface{}{
					"type":        "string",
					"description": "Corpus to report. Omit for all",
					"enum":        corpusNames(),
				},
			},
		},
	}
}

// getNodeTool returns the tool definition for get_node
func getNodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_node",
		Description: "Fetch a node by id, optionally with its outgoing and incoming edges",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Node id, e.g. gamedata:Item/Torch.json",
				},
				"include_edges": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include outgoing and incoming edges",
					"default":     true,
				},
			},
			Required: []string{"id"},
		},
	}
}
