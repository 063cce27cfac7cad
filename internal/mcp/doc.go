// Package mcp implements the Model Context Protocol (MCP) server for lorekeeper.
//
// The MCP server exposes four tools to AI assistants:
//   - index_corpus: Incrementally index one or more corpora
//   - search: Query the knowledge graph (semantic, structural or hybrid)
//   - get_status: Per-corpus counts, last run and vector index
//   - get_node: Fetch a node and its edges
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout carries only protocol messages.
//
// # Basic Usage
//
//	lorekeeper serve --config lorekeeper.yaml
//
// # Tool: index_corpus
//
//	Request:
//	{
//	  "name": "index_corpus",
//	  "arguments": {"corpora": ["gamedata", "docs"]}
//	}
//
//	Response:
//	{
//	  "failed": false,
//	  "corpora": [
//	    {"corpus": "gamedata", "status": "succeeded", "files_added": 412, "nodes_embedded": 412, "edges_written": 1630, ...},
//	    {"corpus": "docs", "status": "noop", ...}
//	  ]
//	}
//
// Corpora always run in dependency order (code, gamedata, client, docs). A
// corpus that another pass is already indexing is reported as "skipped".
//
// # Tool: search
//
//	Request:
//	{
//	  "name": "search",
//	  "arguments": {
//	    "query": "what drops from goblin",
//	    "corpora": ["gamedata"],
//	    "mode": "auto",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "route": "structural",
//	  "intent": "drops_from",
//	  "anchor": "goblin",
//	  "results": [
//	    {"node_id": "gamedata:Item/Gold_Coin.json", "rank": 1, "score": 0.0164,
//	     "source": "structural", "path": ["DROPS_ON_DEATH", "DROPS_ITEM"], ...}
//	  ],
//	  "total": 2
//	}
//
// # Error Codes
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32001  node not found
//	-32002  indexing already in progress
//	-32004  empty query
//	-32005  unknown corpus
package mcp
