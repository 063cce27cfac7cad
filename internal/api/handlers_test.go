package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/app/apptest"
	"github.com/dshills/lorekeeper/pkg/types"
)

func setupTestServer(t *testing.T, index bool) http.Handler {
	t.Helper()
	a := apptest.New(t)
	if index {
		_, failed, err := a.Index(context.Background())
		require.NoError(t, err)
		require.False(t, failed)
	}
	return New(a).Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func nodePath(id string) string {
	return "/api/nodes/" + url.PathEscape(id)
}

func TestHealthCheck(t *testing.T) {
	h := setupTestServer(t, false)
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, map[string]string{"status": "ok"}, decode[map[string]string](t, w))
}

func TestSearch(t *testing.T) {
	h := setupTestServer(t, true)

	t.Run("GET structural", func(t *testing.T) {
		w := do(t, h, http.MethodGet, "/api/search?q="+url.QueryEscape("what does Torch require"), "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[SearchResponse](t, w)
		assert.Equal(t, "structural", string(resp.Route))
		assert.Equal(t, "craft", resp.Intent)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, apptest.WoodStickID, resp.Results[0].NodeID)
		assert.Equal(t, resp.Total, len(resp.Results))
	})

	t.Run("POST semantic", func(t *testing.T) {
		w := do(t, h, http.MethodPost, "/api/search", `{"query":"crafting guide","mode":"semantic","corpora":["docs"],"limit":3}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[SearchResponse](t, w)
		assert.Equal(t, "semantic", string(resp.Route))
		assert.LessOrEqual(t, len(resp.Results), 3)
		for _, r := range resp.Results {
			assert.Equal(t, types.CorpusDocs, r.Corpus)
		}
	})

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"empty query", http.MethodGet, "/api/search?q=", ""},
		{"bad limit", http.MethodGet, "/api/search?q=torch&limit=abc", ""},
		{"limit too large", http.MethodGet, "/api/search?q=torch&limit=500", ""},
		{"bad mode", http.MethodGet, "/api/search?q=torch&mode=fuzzy", ""},
		{"unknown corpus", http.MethodGet, "/api/search?q=torch&corpus=assets", ""},
		{"invalid json", http.MethodPost, "/api/search", `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
		})
	}
}

func TestStatus(t *testing.T) {
	h := setupTestServer(t, true)

	w := do(t, h, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[map[string][]map[string]interface{}](t, w)
	assert.Len(t, all["corpora"], len(types.AllCorpora))

	w = do(t, h, http.MethodGet, "/api/status?corpus=docs", "")
	require.Equal(t, http.StatusOK, w.Code)
	one := decode[map[string][]map[string]interface{}](t, w)
	require.Len(t, one["corpora"], 1)
	assert.Equal(t, "docs", one["corpora"][0]["corpus"])
	assert.Equal(t, float64(1), one["corpora"][0]["nodes"])

	w = do(t, h, http.MethodGet, "/api/status?corpus=assets", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetNode(t *testing.T) {
	h := setupTestServer(t, true)

	w := do(t, h, http.MethodGet, nodePath(apptest.TorchID), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]interface{}](t, w)
	node := body["node"].(map[string]interface{})
	assert.Equal(t, apptest.TorchID, node["id"])
	assert.NotContains(t, body, "outgoing")

	w = do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"?edges=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]interface{}](t, w)
	assert.Len(t, body["outgoing"], 1)
	assert.Len(t, body["incoming"], 1)

	w = do(t, h, http.MethodGet, nodePath("gamedata:Item/Missing.json"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEdges(t *testing.T) {
	h := setupTestServer(t, true)

	w := do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"/edges", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[EdgesResponse](t, w)
	require.Len(t, resp.Outgoing, 1)
	assert.Equal(t, types.EdgeRequiresItem, resp.Outgoing[0].Type)
	assert.Equal(t, apptest.WoodStickID, resp.Outgoing[0].TargetID)
	require.Len(t, resp.Incoming, 1)
	assert.Equal(t, apptest.GuideID, resp.Incoming[0].SourceID)

	w = do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"/edges?direction=out&type=DOCS_REFERENCES", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[EdgesResponse](t, w)
	assert.Empty(t, resp.Outgoing)
	assert.Empty(t, resp.Incoming)

	w = do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"/edges?direction=in&type=DOCS_REFERENCES", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[EdgesResponse](t, w)
	assert.Empty(t, resp.Outgoing)
	assert.Len(t, resp.Incoming, 1)

	w = do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"/edges?direction=sideways", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, nodePath(apptest.TorchID)+"/edges?type=TELEPORTS_TO", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, nodePath("docs:missing.md")+"/edges", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndex(t *testing.T) {
	h := setupTestServer(t, false)

	w := do(t, h, http.MethodPost, "/api/index", `{"corpora":["gamedata"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[IndexResponse](t, w)
	assert.False(t, resp.Failed)
	require.Len(t, resp.Corpora, 1)
	assert.Equal(t, types.CorpusGamedata, resp.Corpora[0].Corpus)
	assert.Equal(t, "succeeded", resp.Corpora[0].Status)

	w = do(t, h, http.MethodPost, "/api/index", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = decode[IndexResponse](t, w)
	assert.Len(t, resp.Corpora, 2)

	w = do(t, h, http.MethodPost, "/api/index", `{"corpora":["assets"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodGet, "/api/index", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
