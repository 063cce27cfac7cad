package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lorekeeper/internal/embedder"
	"github.com/dshills/lorekeeper/internal/resolver"
	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

var (
	ErrEmptyQuery  = errors.New("query cannot be empty")
	ErrInvalidMode = errors.New("unsupported search mode")
)

// Mode selects how a query is routed.
type Mode string

const (
	ModeAuto       Mode = "auto"       // classify the query
	ModeSemantic   Mode = "semantic"   // vector search only
	ModeStructural Mode = "structural" // graph traversal, semantic when it cannot anchor
)

// ParseMode accepts an empty string as ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeSemantic, ModeStructural:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Route is the path a query actually took.
type Route string

const (
	RouteSemantic   Route = "semantic"
	RouteStructural Route = "structural"
	RouteHybrid     Route = "hybrid"
)

// Defaults
const (
	DefaultRRFK         = 60
	DefaultLimit        = 10
	MaxLimit            = 100
	DefaultSemanticK    = 20
	DefaultCacheSize    = 1000
	maxFrontier         = 500
	maxSnippet          = 240
	structuralRankLimit = 200
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Text    string
	Corpora []types.Corpus // empty searches every corpus
	Mode    Mode
	Limit   int
}

// SearchResponse contains search results and how they were produced.
type SearchResponse struct {
	Results  []types.RankedResult `json:"results"`
	Route    Route                `json:"route"`
	Intent   string               `json:"intent,omitempty"`
	Anchor   string               `json:"anchor,omitempty"`
	Anchors  []string             `json:"anchor_nodes,omitempty"` // resolved anchor node ids
	Fallback bool                 `json:"fallback"`               // structural routing could not anchor and fell back
	Degraded bool                 `json:"degraded,omitempty"`     // one hybrid leg failed and the other answered alone
	CacheHit bool                 `json:"cache_hit"`
	Duration time.Duration        `json:"-"`
}

// Options tunes a Searcher.
type Options struct {
	RRFK         int
	SemanticK    int
	DefaultLimit int
	CacheSize    int
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.RRFK <= 0 {
		o.RRFK = DefaultRRFK
	}
	if o.SemanticK <= 0 {
		o.SemanticK = DefaultSemanticK
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	if o.DefaultLimit > MaxLimit {
		o.DefaultLimit = MaxLimit
	}
	if o.CacheSize <= 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Searcher routes queries to the vector indexes, the graph or both.
type Searcher struct {
	store    storage.Graph
	embedder embedder.Embedder
	vectors  *vectorindex.Manager
	opts     Options
	logger   *slog.Logger

	cache *lru.Cache[xxh3.Uint128, *SearchResponse]

	// names is the anchor lookup, built on first use and dropped by
	// Invalidate.
	namesMu sync.Mutex
	names   *resolver.Resolver
}

// New creates a Searcher. emb may be nil, in which case only structural
// routes produce results.
func New(store storage.Graph, emb embedder.Embedder, vectors *vectorindex.Manager, opts Options) (*Searcher, error) {
	opts = opts.withDefaults()
	cache, err := lru.New[xxh3.Uint128, *SearchResponse](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &Searcher{
		store:    store,
		embedder: emb,
		vectors:  vectors,
		opts:     opts,
		logger:   opts.Logger,
		cache:    cache,
	}, nil
}

// Invalidate drops cached results and the anchor lookup. It is called after
// every indexing pass that changed the store.
func (s *Searcher) Invalidate() {
	s.cache.Purge()
	s.namesMu.Lock()
	s.names = nil
	s.namesMu.Unlock()
}

// Search routes one query and returns fused, ranked results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()
	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := cacheKey(req)
	if cached, ok := s.cache.Get(key); ok {
		resp := copyResponse(cached)
		resp.CacheHit = true
		resp.Duration = time.Since(start)
		return resp, nil
	}

	resp, err := s.route(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)
	s.logger.Debug("search.done", "route", resp.Route, "intent", resp.Intent,
		"anchor", resp.Anchor, "fallback", resp.Fallback, "results", len(resp.Results),
		"duration", resp.Duration)

	if !resp.Degraded {
		s.cache.Add(key, copyResponse(resp))
	}
	return resp, nil
}

func (s *Searcher) route(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Mode == ModeSemantic {
		return s.semanticOnly(ctx, req, &SearchResponse{})
	}

	match := Classify(req.Text)
	if match == nil {
		return s.semanticOnly(ctx, req, &SearchResponse{Fallback: req.Mode == ModeStructural})
	}
	resp := &SearchResponse{Intent: match.Intent.Name, Anchor: match.Anchor}

	anchors, err := s.resolveAnchor(ctx, match)
	if err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		resp.Fallback = true
		return s.semanticOnly(ctx, req, resp)
	}
	for _, a := range anchors {
		resp.Anchors = append(resp.Anchors, a.ID)
	}

	if req.Mode == ModeStructural || !match.Explanatory {
		structural, err := s.traverse(ctx, match.Intent, anchors, req.Corpora)
		if err != nil {
			return nil, err
		}
		resp.Route = RouteStructural
		resp.Results = s.fuse(req.Limit, structural)
		return resp, nil
	}

	// The legs share no context, so one failing does not cancel the other.
	var (
		structural, semantic []candidate
		structErr, semErr    error
		g                    errgroup.Group
	)
	g.Go(func() error {
		structural, structErr = s.traverse(ctx, match.Intent, anchors, req.Corpora)
		if structErr != nil {
			return fmt.Errorf("%s leg: %w", RouteStructural, structErr)
		}
		return nil
	})
	g.Go(func() error {
		semantic, semErr = s.semantic(ctx, req)
		if semErr != nil {
			return fmt.Errorf("%s leg: %w", RouteSemantic, semErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		if structErr != nil && semErr != nil {
			return nil, fmt.Errorf("both search legs failed: %w, %v", structErr, semErr)
		}
		// Either leg may fail alone; the other one answers.
		s.logger.Warn("search.leg_failed", "error", err)
		resp.Degraded = true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp.Route = RouteHybrid
	resp.Results = s.fuse(req.Limit, structural, semantic)
	return resp, nil
}

func (s *Searcher) semanticOnly(ctx context.Context, req SearchRequest, resp *SearchResponse) (*SearchResponse, error) {
	semantic, err := s.semantic(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Route = RouteSemantic
	resp.Results = s.fuse(req.Limit, semantic)
	return resp, nil
}

// candidate is one entry of a ranked list before fusion.
type candidate struct {
	node   *types.Node
	source types.ResultSource
	path   []types.EdgeType
}

// lookup returns the cached anchor lookup, building it when missing.
func (s *Searcher) lookup(ctx context.Context) (*resolver.Resolver, error) {
	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	if s.names != nil {
		return s.names, nil
	}
	res, err := resolver.Build(ctx, s.store, types.AllCorpora...)
	if err != nil {
		return nil, err
	}
	s.names = res
	return res, nil
}

// resolveAnchor finds the nodes an anchor name refers to. The intent's
// corpora are tried in order; the first with a match wins. A display-name
// match over every corpus is the last resort.
func (s *Searcher) resolveAnchor(ctx context.Context, m *Match) ([]resolver.Entry, error) {
	res, err := s.lookup(ctx)
	if err != nil {
		return nil, err
	}
	variants := nameVariants(m.Anchor)
	for _, corpus := range m.Intent.AnchorCorpora {
		for _, v := range variants {
			if found := res.Lookup(corpus).Find(v); len(found) > 0 {
				return found, nil
			}
		}
	}

	for _, v := range variants {
		nodes, err := s.store.FindNodesByDisplayName(ctx, "", v)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			continue
		}
		out := make([]resolver.Entry, len(nodes))
		for i, n := range nodes {
			out[i] = resolver.Entry{ID: n.ID, Name: n.DisplayName, NodeType: n.NodeType, DataType: n.DataType}
		}
		return out, nil
	}
	return nil, nil
}

// traverse walks every path of intent from the anchors. Nodes reached by the
// last hop are ranked by discovery order.
func (s *Searcher) traverse(ctx context.Context, intent *Intent, anchors []resolver.Entry, corpora []types.Corpus) ([]candidate, error) {
	allowed := corpusSet(corpora)
	seen := make(map[string]bool)
	var out []candidate

	for _, path := range intent.Paths {
		var frontier []string
		for _, a := range anchors {
			if path.accepts(a.DataType) {
				frontier = append(frontier, a.ID)
			}
		}
		hops := make([]types.EdgeType, 0, len(path.Hops))
		for _, hop := range path.Hops {
			if len(frontier) == 0 {
				break
			}
			next, err := s.step(ctx, frontier, hop)
			if err != nil {
				return nil, err
			}
			frontier = next
			hops = append(hops, hop.Edge)
		}
		if len(hops) < len(path.Hops) {
			continue
		}

		for _, id := range frontier {
			if seen[id] || len(out) >= structuralRankLimit {
				continue
			}
			seen[id] = true
			n, err := s.store.GetNode(ctx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if allowed != nil && !allowed[n.Corpus] {
				continue
			}
			out = append(out, candidate{node: n, source: types.SourceStructural, path: hops})
		}
	}
	return out, nil
}

// step follows one hop from every frontier node, keeping first-seen order.
// Unresolved targets are not nodes and end the walk.
func (s *Searcher) step(ctx context.Context, frontier []string, hop Hop) ([]string, error) {
	seen := make(map[string]bool)
	var next []string
	for _, id := range frontier {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			edges []types.Edge
			err   error
		)
		if hop.Dir == Out {
			edges, err = s.store.EdgesFrom(ctx, id, hop.Edge)
		} else {
			edges, err = s.store.EdgesTo(ctx, id, hop.Edge)
		}
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			other := e.TargetID
			if hop.Dir == In {
				other = e.SourceID
			} else if !e.TargetResolved {
				continue
			}
			if seen[other] {
				continue
			}
			seen[other] = true
			next = append(next, other)
			if len(next) >= maxFrontier {
				return next, nil
			}
		}
	}
	return next, nil
}

// semantic embeds the query and runs a top-K search over each corpus index.
// Corpora without a published index are skipped.
func (s *Searcher) semantic(ctx context.Context, req SearchRequest) ([]candidate, error) {
	if s.embedder == nil || s.vectors == nil {
		return nil, nil
	}
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	corpora := req.Corpora
	if len(corpora) == 0 {
		corpora = types.AllCorpora
	}
	k := s.opts.SemanticK
	if k < req.Limit {
		k = req.Limit
	}

	type scored struct {
		candidate
		score float32
	}
	var hits []scored
	for _, corpus := range corpora {
		found, err := s.vectors.Query(corpus, emb.Vector, k)
		switch {
		case errors.Is(err, vectorindex.ErrEmptyIndex):
			continue
		case errors.Is(err, vectorindex.ErrDimensionMismatch):
			s.logger.Warn("search.index_mismatch", "corpus", corpus, "error", err)
			continue
		case err != nil:
			return nil, fmt.Errorf("query %s index: %w", corpus, err)
		}

		ids := make([]string, len(found))
		for i, h := range found {
			ids[i] = h.ID
		}
		nodes, err := s.store.GetNodes(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, h := range found {
			n, ok := nodes[h.ID]
			if !ok {
				continue
			}
			hits = append(hits, scored{candidate: candidate{node: n, source: types.SourceSemantic}, score: h.Score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	out := make([]candidate, len(hits))
	for i, h := range hits {
		out[i] = h.candidate
	}
	return out, nil
}

// fused accumulates one node's reciprocal rank terms.
type fused struct {
	candidate
	score float64
	lists int
	first int
}

// applyRRF fuses ranked lists with Reciprocal Rank Fusion:
// score(d) = Σ 1/(k + rank_i(d)) over every list d appears in.
// Ties keep first-appearance order.
func applyRRF(k int, lists ...[]candidate) []fused {
	if k <= 0 {
		k = DefaultRRFK
	}
	byID := make(map[string]*fused)
	var order []*fused
	for _, list := range lists {
		for rank, c := range list {
			f, ok := byID[c.node.ID]
			if !ok {
				f = &fused{candidate: c, first: len(order)}
				byID[c.node.ID] = f
				order = append(order, f)
			} else if f.path == nil && c.path != nil {
				f.path = c.path
			}
			f.score += 1.0 / float64(k+rank+1)
			f.lists++
		}
	}

	out := make([]fused, len(order))
	for i, f := range order {
		out[i] = *f
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].first < out[j].first
	})
	return out
}

func (s *Searcher) fuse(limit int, lists ...[]candidate) []types.RankedResult {
	merged := applyRRF(s.opts.RRFK, lists...)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	results := make([]types.RankedResult, len(merged))
	for i, f := range merged {
		src := f.source
		if f.lists > 1 {
			src = types.SourceHybrid
		}
		n := f.node
		results[i] = types.RankedResult{
			NodeID:      n.ID,
			Corpus:      n.Corpus,
			DisplayName: n.DisplayName,
			NodeType:    n.NodeType,
			DataType:    n.DataType,
			OwningFile:  n.OwningFile,
			Rank:        i + 1,
			Score:       f.score,
			Source:      src,
			Path:        f.path,
			Snippet:     snippet(n),
		}
	}
	return results
}

func snippet(n *types.Node) string {
	text := n.EmbeddingText
	if text == "" {
		text = n.Content
	}
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxSnippet {
		return string(r[:maxSnippet]) + "..."
	}
	return text
}

// validateRequest ensures search request is valid
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = s.opts.DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode
	for _, c := range req.Corpora {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", types.ErrUnknownCorpus, c)
		}
	}
	return nil
}

func corpusSet(corpora []types.Corpus) map[types.Corpus]bool {
	if len(corpora) == 0 {
		return nil
	}
	set := make(map[types.Corpus]bool, len(corpora))
	for _, c := range corpora {
		set[c] = true
	}
	return set
}

// cacheKey hashes the normalized request. Corpora are sorted so their order
// does not split the cache.
func cacheKey(req SearchRequest) xxh3.Uint128 {
	corpora := make([]string, len(req.Corpora))
	for i, c := range req.Corpora {
		corpora[i] = string(c)
	}
	sort.Strings(corpora)

	var b strings.Builder
	b.WriteString(req.Text)
	b.WriteString("|")
	b.WriteString(string(req.Mode))
	b.WriteString("|")
	b.WriteString(strings.Join(corpora, ","))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(req.Limit))
	return xxh3.HashString128(b.String())
}

// copyResponse creates a deep copy so cached entries are never shared.
func copyResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Anchors = append([]string(nil), src.Anchors...)
	dst.Results = make([]types.RankedResult, len(src.Results))
	for i, r := range src.Results {
		r.Path = append([]types.EdgeType(nil), r.Path...)
		dst.Results[i] = r
	}
	return &dst
}
