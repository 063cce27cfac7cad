package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/app/apptest"
)

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T, index bool) *Server {
	t.Helper()
	a := apptest.New(t)
	if index {
		_, failed, err := a.Index(context.Background())
		require.NoError(t, err)
		require.False(t, failed)
	}
	return NewServer(a)
}

func call(t *testing.T, h handler, args map[string]interface{}) (map[string]interface{}, error) {
	t.Helper()
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
	res, err := h(context.Background(), request)
	if err != nil {
		return nil, err
	}
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)

	var text string
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		text = c.Text
	case *mcp.TextContent:
		text = c.Text
	default:
		t.Fatalf("unexpected content %T", c)
	}
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out, nil
}

func requireMCPError(t *testing.T, err error, code int) *MCPError {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
	return mcpErr
}

func TestNewServer_RegistersTools(t *testing.T) {
	s := newTestServer(t, false)
	assert.NotNil(t, s.mcp)

	for _, tool := range []mcp.Tool{indexCorpusTool(), searchTool(), getStatusTool(), getNodeTool()} {
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
	}
	assert.Equal(t, []string{"query"}, searchTool().InputSchema.Required)
	assert.Equal(t, []string{"id"}, getNodeTool().InputSchema.Required)
}

func TestHandleIndexCorpus(t *testing.T) {
	s := newTestServer(t, false)

	out, err := call(t, s.handleIndexCorpus, map[string]interface{}{
		"corpora": []interface{}{"gamedata"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, out["failed"])
	corpora, ok := out["corpora"].([]interface{})
	require.True(t, ok)
	require.Len(t, corpora, 1)
	first := corpora[0].(map[string]interface{})
	assert.Equal(t, "gamedata", first["corpus"])
	assert.Equal(t, "succeeded", first["status"])
	assert.Equal(t, float64(2), first["files_added"])

	out, err = call(t, s.handleIndexCorpus, nil)
	require.NoError(t, err)
	assert.Len(t, out["corpora"], 2)

	_, err = call(t, s.handleIndexCorpus, map[string]interface{}{"corpora": []interface{}{"assets"}})
	requireMCPError(t, err, ErrorCodeUnknownCorpus)

	_, err = call(t, s.handleIndexCorpus, map[string]interface{}{"corpora": []interface{}{42.0}})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleSearch(t *testing.T) {
	s := newTestServer(t, true)

	t.Run("structural", func(t *testing.T) {
		out, err := call(t, s.handleSearch, map[string]interface{}{"query": "what does Torch require"})
		require.NoError(t, err)
		assert.Equal(t, "structural", out["route"])
		assert.Equal(t, "craft", out["intent"])
		assert.Equal(t, "Torch", out["anchor"])
		results := out["results"].([]interface{})
		require.NotEmpty(t, results)
		top := results[0].(map[string]interface{})
		assert.Equal(t, apptest.WoodStickID, top["node_id"])
		assert.Equal(t, float64(1), top["rank"])
		assert.Equal(t, []interface{}{"REQUIRES_ITEM"}, top["path"])
	})

	t.Run("semantic with corpus filter", func(t *testing.T) {
		out, err := call(t, s.handleSearch, map[string]interface{}{
			"query":   "crafting guide",
			"mode":    "semantic",
			"corpora": []interface{}{"docs"},
			"limit":   float64(5),
		})
		require.NoError(t, err)
		assert.Equal(t, "semantic", out["route"])
		for _, r := range out["results"].([]interface{}) {
			assert.Equal(t, "docs", r.(map[string]interface{})["corpus"])
		}
	})

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"limit too large", map[string]interface{}{"query": "torch", "limit": float64(101)}, ErrorCodeInvalidParams},
		{"limit zero", map[string]interface{}{"query": "torch", "limit": float64(0)}, ErrorCodeInvalidParams},
		{"bad mode", map[string]interface{}{"query": "torch", "mode": "fuzzy"}, ErrorCodeInvalidParams},
		{"unknown corpus", map[string]interface{}{"query": "torch", "corpora": []interface{}{"assets"}}, ErrorCodeUnknownCorpus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, s.handleSearch, tt.args)
			requireMCPError(t, err, tt.code)
		})
	}
}

func TestHandleGetStatus(t *testing.T) {
	s := newTestServer(t, true)

	out, err := call(t, s.handleGetStatus, nil)
	require.NoError(t, err)
	assert.Len(t, out["corpora"], 4)
	emb := out["embedder"].(map[string]interface{})
	assert.Equal(t, float64(64), emb["dimension"])

	out, err = call(t, s.handleGetStatus, map[string]interface{}{"corpus": "gamedata"})
	require.NoError(t, err)
	corpora := out["corpora"].([]interface{})
	require.Len(t, corpora, 1)
	st := corpora[0].(map[string]interface{})
	assert.Equal(t, float64(2), st["nodes"])
	assert.Equal(t, true, st["configured"])
	assert.NotNil(t, st["last_run"])
	assert.NotNil(t, st["vector_index"])

	_, err = call(t, s.handleGetStatus, map[string]interface{}{"corpus": "assets"})
	requireMCPError(t, err, ErrorCodeUnknownCorpus)
}

func TestHandleGetNode(t *testing.T) {
	s := newTestServer(t, true)

	out, err := call(t, s.handleGetNode, map[string]interface{}{"id": apptest.TorchID})
	require.NoError(t, err)
	node := out["node"].(map[string]interface{})
	assert.Equal(t, "Torch", node["display_name"])
	assert.NotContains(t, node, "embedding")
	require.Len(t, out["outgoing"], 1)
	require.Len(t, out["incoming"], 1)

	out, err = call(t, s.handleGetNode, map[string]interface{}{"id": apptest.TorchID, "include_edges": false})
	require.NoError(t, err)
	assert.NotContains(t, out, "outgoing")

	_, err = call(t, s.handleGetNode, map[string]interface{}{"id": "gamedata:Item/Missing.json"})
	requireMCPError(t, err, ErrorCodeNotFound)

	_, err = call(t, s.handleGetNode, map[string]interface{}{})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"limit":  float64(7),
		"count":  3,
		"flag":   true,
		"name":   "torch",
		"single": "code",
	}
	assert.Equal(t, 7, getIntDefault(args, "limit", 10))
	assert.Equal(t, 3, getIntDefault(args, "count", 10))
	assert.Equal(t, 10, getIntDefault(args, "missing", 10))
	assert.True(t, getBoolDefault(args, "flag", false))
	assert.True(t, getBoolDefault(args, "missing", true))
	assert.Equal(t, "torch", getStringDefault(args, "name", ""))

	corpora, err := getCorpora(args, "single")
	require.NoError(t, err)
	assert.Len(t, corpora, 1)

	corpora, err = getCorpora(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, corpora)

	_, err = arguments(mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: "bad"}})
	requireMCPError(t, err, ErrorCodeInvalidParams)
}
