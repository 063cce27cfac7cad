package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/pkg/types"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SearchRequest is the request body for POST /api/search
type SearchRequest struct {
	Query   string   `json:"query"`
	Corpora []string `json:"corpora,omitempty"`
	Mode    string   `json:"mode,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

// SearchResponse is the response for /api/search
type SearchResponse struct {
	Route      searcher.Route       `json:"route"`
	Intent     string               `json:"intent,omitempty"`
	Anchor     string               `json:"anchor,omitempty"`
	Anchors    []string             `json:"anchor_nodes,omitempty"`
	Fallback   bool                 `json:"fallback"`
	Results    []types.RankedResult `json:"results"`
	Total      int                  `json:"total"`
	CacheHit   bool                 `json:"cache_hit"`
	DurationMS int64                `json:"duration_ms"`
}

// IndexRequest is the request body for POST /api/index
type IndexRequest struct {
	Corpora []string `json:"corpora,omitempty"`
}

// IndexResponse is the response for POST /api/index
type IndexResponse struct {
	Failed  bool            `json:"failed"`
	Corpora []app.RunReport `json:"corpora"`
}

// EdgesResponse is the response for GET /api/nodes/{id}/edges
type EdgesResponse struct {
	NodeID   string       `json:"node_id"`
	Outgoing []types.Edge `json:"outgoing,omitempty"`
	Incoming []types.Edge `json:"incoming,omitempty"`
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Search handles GET and POST /api/search
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	} else {
		q := r.URL.Query()
		req.Query = q.Get("q")
		req.Corpora = q["corpus"]
		req.Mode = q.Get("mode")
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid limit parameter")
				return
			}
			req.Limit = n
		}
	}

	if req.Limit < 0 || req.Limit > searcher.MaxLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(searcher.MaxLimit))
		return
	}
	corpora, err := parseCorpora(req.Corpora)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.app.Searcher.Search(r.Context(), searcher.SearchRequest{
		Text:    req.Query,
		Corpora: corpora,
		Mode:    searcher.Mode(req.Mode),
		Limit:   req.Limit,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	results := resp.Results
	if results == nil {
		results = []types.RankedResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Route:      resp.Route,
		Intent:     resp.Intent,
		Anchor:     resp.Anchor,
		Anchors:    resp.Anchors,
		Fallback:   resp.Fallback,
		Results:    results,
		Total:      len(results),
		CacheHit:   resp.CacheHit,
		DurationMS: resp.Duration.Milliseconds(),
	})
}

// Status handles GET /api/status
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	var corpus types.Corpus
	if name := r.URL.Query().Get("corpus"); name != "" {
		c, err := types.ParseCorpus(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		corpus = c
	}

	statuses, err := s.app.Status(r.Context(), corpus)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"corpora": statuses})
}

// GetNode handles GET /api/nodes/{id}
// Supports ?edges=true to include outgoing and incoming edges.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	withEdges, _ := strconv.ParseBool(r.URL.Query().Get("edges"))

	rep, err := s.app.Node(r.Context(), id, withEdges)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetEdges handles GET /api/nodes/{id}/edges
// Query params: direction=out|in|both (default both), type=EDGE_TYPE (repeatable)
func (s *Server) GetEdges(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	var edgeTypes []types.EdgeType
	for _, name := range q["type"] {
		t, err := types.ParseEdgeType(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		edgeTypes = append(edgeTypes, t)
	}

	direction := q.Get("direction")
	switch direction {
	case "":
		direction = "both"
	case "out", "in", "both":
	default:
		writeError(w, http.StatusBadRequest, "direction must be out, in or both")
		return
	}

	ctx := r.Context()
	if _, err := s.app.Node(ctx, id, false); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	resp := EdgesResponse{NodeID: id}
	var err error
	if direction != "in" {
		if resp.Outgoing, err = s.app.Store.EdgesFrom(ctx, id, edgeTypes...); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if direction != "out" {
		if resp.Incoming, err = s.app.Store.EdgesTo(ctx, id, edgeTypes...); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Index handles POST /api/index
// An empty body indexes every configured corpus.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	corpora, err := parseCorpora(req.Corpora)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reports, failed, err := s.app.Index(r.Context(), corpora...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	status := http.StatusOK
	if failed {
		status = http.StatusInternalServerError
	} else if len(reports) > 0 && allSkipped(reports) {
		status = http.StatusConflict
	}
	writeJSON(w, status, IndexResponse{Failed: failed, Corpora: reports})
}

func allSkipped(reports []app.RunReport) bool {
	for _, r := range reports {
		if r.Status != "skipped" {
			return false
		}
	}
	return true
}

func nodeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil || id == "" {
		writeError(w, http.StatusBadRequest, "invalid node id")
		return "", false
	}
	return id, true
}

func parseCorpora(names []string) ([]types.Corpus, error) {
	out := make([]types.Corpus, 0, len(names))
	for _, name := range names {
		c, err := types.ParseCorpus(name)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, searcher.ErrEmptyQuery),
		errors.Is(err, searcher.ErrInvalidMode),
		errors.Is(err, types.ErrUnknownCorpus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
