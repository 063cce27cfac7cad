package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // Node id does not exist
	ErrorCodeIndexingInProgress = -32002 // Another pass holds every requested corpus
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeUnknownCorpus      = -32005 // Corpus name is not one of code, gamedata, client, docs
)

// handleIndexCorpus handles the index_corpus tool invocation
func (s *Server) handleIndexCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	corpora, err := getCorpora(args, "corpora")
	if err != nil {
		return nil, err
	}

	reports, failed, err := s.app.Index(ctx, corpora...)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	skipped := 0
	for _, r := range reports {
		if r.Status == "skipped" {
			skipped++
		}
	}
	if len(reports) > 0 && skipped == len(reports) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"corpora": corpora,
		})
	}

	response := map[string]interface{}{
		"failed":  failed,
		"corpora": reports,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearch handles the search tool invocation
func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []string{string(searcher.ModeAuto), string(searcher.ModeSemantic), string(searcher.ModeStructural)},
		})
	}

	corpora, err := getCorpora(args, "corpora")
	if err != nil {
		return nil, err
	}

	resp, err := s.app.Searcher.Search(ctx, searcher.SearchRequest{
		Text:    query,
		Corpora: corpora,
		Mode:    mode,
		Limit:   limit,
	})
	switch {
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"route":       resp.Route,
		"fallback":    resp.Fallback,
		"results":     resp.Results,
		"total":       len(resp.Results),
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.Intent != "" {
		response["intent"] = resp.Intent
		response["anchor"] = resp.Anchor
	}
	if len(resp.Anchors) > 0 {
		response["anchor_nodes"] = resp.Anchors
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var corpus types.Corpus
	if name := getStringDefault(args, "corpus", ""); name != "" {
		if corpus, err = types.ParseCorpus(name); err != nil {
			return nil, unknownCorpus("corpus", name)
		}
	}

	statuses, err := s.app.Status(ctx, corpus)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"corpora": statuses,
		"embedder": map[string]interface{}{
			"provider":  s.app.Embedder.Provider(),
			"model":     s.app.Embedder.Model(),
			"dimension": s.app.Embedder.Dimension(),
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetNode handles the get_node tool invocation
func (s *Server) handleGetNode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	id := getStringDefault(args, "id", "")
	if id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}

	rep, err := s.app.Node(ctx, id, getBoolDefault(args, "include_edges", true))
	switch {
	case errors.Is(err, app.ErrNodeNotFound):
		return nil, newMCPError(ErrorCodeNotFound, "node not found", map[string]interface{}{
			"id": id,
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "failed to get node", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"node": rep.Node,
	}
	if rep.Outgoing != nil || rep.Incoming != nil {
		response["outgoing"] = rep.Outgoing
		response["incoming"] = rep.Incoming
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func unknownCorpus(param string, value interface{}) error {
	return newMCPError(ErrorCodeUnknownCorpus, "unknown corpus", map[string]interface{}{
		"param":   param,
		"value":   value,
		"allowed": corpusNames(),
	})
}

// arguments extracts the argument map. Absent arguments are an empty map.
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getCorpora extracts a list of corpus names. JSON arrays arrive as
// []interface{}; a bare string is accepted as a one-element list.
func getCorpora(args map[string]interface{}, key string) ([]types.Corpus, error) {
	var names []string
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case string:
		names = []string{v}
	case []string:
		names = v
	case []interface{}:
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, key+" must be a list of strings", map[string]interface{}{
					"param": key,
					"value": item,
				})
			}
			names = append(names, name)
		}
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be a list of strings", map[string]interface{}{
			"param": key,
		})
	}

	out := make([]types.Corpus, 0, len(names))
	for _, name := range names {
		c, err := types.ParseCorpus(name)
		if err != nil {
			return nil, unknownCorpus(key, name)
		}
		out = append(out, c)
	}
	return out, nil
}
