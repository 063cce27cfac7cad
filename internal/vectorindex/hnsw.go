package vectorindex

import (
	"math"
	"math/rand"
	"sort"
)

// Config holds HNSW graph parameters.
type Config struct {
	M              int   `msgpack:"m" yaml:"m"`                             // links per node per layer (layer 0 keeps 2*M)
	EfConstruction int   `msgpack:"ef_construction" yaml:"ef_construction"` // candidate list size while building
	EfSearch       int   `msgpack:"ef_search" yaml:"ef_search"`             // candidate list size while querying
	Seed           int64 `msgpack:"seed" yaml:"seed"`                       // level generator seed; builds are reproducible
}

// DefaultConfig returns M=16, efConstruction=200, efSearch=100.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       100,
		Seed:           1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.M <= 0 {
		c.M = d.M
	}
	if c.EfConstruction <= 0 {
		c.EfConstruction = d.EfConstruction
	}
	if c.EfSearch <= 0 {
		c.EfSearch = d.EfSearch
	}
	return c
}

// graph is a rebuild-only HNSW graph over unit vectors. Node ids are the
// insertion ordinals.
type graph struct {
	cfg      Config
	dim      int
	vectors  [][]float32
	levels   []int
	links    [][][]uint32 // links[node][level]
	entry    uint32
	maxLevel int
}

func buildGraph(cfg Config, dim int, vectors [][]float32) *graph {
	cfg = cfg.withDefaults()
	g := &graph{
		cfg:     cfg,
		dim:     dim,
		vectors: make([][]float32, 0, len(vectors)),
		levels:  make([]int, 0, len(vectors)),
		links:   make([][][]uint32, 0, len(vectors)),
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	mult := 1.0 / math.Log(float64(cfg.M))
	for _, v := range vectors {
		level := int(-math.Log(1-rng.Float64()) * mult)
		g.insert(normalized(v), level)
	}
	return g
}

func (g *graph) insert(vec []float32, level int) {
	id := uint32(len(g.vectors))
	g.vectors = append(g.vectors, vec)
	g.levels = append(g.levels, level)
	g.links = append(g.links, make([][]uint32, level+1))

	if id == 0 {
		g.entry = 0
		g.maxLevel = level
		return
	}

	ep := g.entry
	for l := g.maxLevel; l > level; l-- {
		ep = g.greedy(vec, ep, l)
	}

	for l := min(level, g.maxLevel); l >= 0; l-- {
		cands := g.searchLayer(vec, ep, g.cfg.EfConstruction, l)
		neighbors := make([]uint32, 0, g.cfg.M)
		for _, c := range cands {
			if len(neighbors) == g.cfg.M {
				break
			}
			neighbors = append(neighbors, c.id)
		}
		g.links[id][l] = neighbors

		for _, n := range neighbors {
			g.links[n][l] = append(g.links[n][l], id)
			if limit := g.maxLinks(l); len(g.links[n][l]) > limit {
				g.links[n][l] = g.prune(n, g.links[n][l], limit)
			}
		}
		if len(cands) > 0 {
			ep = cands[0].id
		}
	}

	if level > g.maxLevel {
		g.entry = id
		g.maxLevel = level
	}
}

func (g *graph) maxLinks(level int) int {
	if level == 0 {
		return 2 * g.cfg.M
	}
	return g.cfg.M
}

// prune keeps the limit links closest to node.
func (g *graph) prune(node uint32, links []uint32, limit int) []uint32 {
	items := make([]distItem, len(links))
	for i, l := range links {
		items[i] = distItem{id: l, dist: g.distance(g.vectors[node], l)}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].dist < items[j].dist })
	out := make([]uint32, limit)
	for i := range out {
		out[i] = items[i].id
	}
	return out
}

func (g *graph) distance(q []float32, id uint32) float32 {
	return 1 - dot(q, g.vectors[id])
}

func (g *graph) greedy(q []float32, ep uint32, level int) uint32 {
	cur := ep
	curDist := g.distance(q, cur)
	for {
		changed := false
		for _, n := range g.links[cur][level] {
			if d := g.distance(q, n); d < curDist {
				cur, curDist, changed = n, d, true
			}
		}
		if !changed {
			return cur
		}
	}
}

// searchLayer returns up to ef nodes closest to q on one layer, nearest
// first.
func (g *graph) searchLayer(q []float32, ep uint32, ef, level int) []distItem {
	visited := make(map[uint32]struct{}, ef*2)
	visited[ep] = struct{}{}

	start := distItem{id: ep, dist: g.distance(q, ep)}
	candidates := &distHeap{}
	results := &distHeap{max: true}
	candidates.Push(start)
	results.Push(start)

	for candidates.Len() > 0 {
		closest := candidates.Pop()
		if results.Len() >= ef && closest.dist > results.Peek().dist {
			break
		}
		if level >= len(g.links[closest.id]) {
			continue
		}
		for _, n := range g.links[closest.id][level] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}

			d := g.distance(q, n)
			if results.Len() < ef || d < results.Peek().dist {
				candidates.Push(distItem{id: n, dist: d})
				results.Push(distItem{id: n, dist: d})
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	out := make([]distItem, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = results.Pop()
	}
	return out
}

func (g *graph) search(q []float32, k, ef int) []distItem {
	if len(g.vectors) == 0 {
		return nil
	}
	ep := g.entry
	for l := g.maxLevel; l > 0; l-- {
		ep = g.greedy(q, ep, l)
	}
	items := g.searchLayer(q, ep, max(ef, k), 0)
	if len(items) > k {
		items = items[:k]
	}
	return items
}

type distItem struct {
	id   uint32
	dist float32
}

// distHeap is a binary heap ordered by distance, ascending unless max.
type distHeap struct {
	max   bool
	items []distItem
}

func (h *distHeap) Len() int { return len(h.items) }

func (h *distHeap) Peek() distItem { return h.items[0] }

func (h *distHeap) Push(item distItem) {
	h.items = append(h.items, item)
	h.siftUp(len(h.items) - 1)
}

func (h *distHeap) Pop() distItem {
	n := len(h.items)
	out := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return out
}

func (h *distHeap) less(i, j int) bool {
	if h.max {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}

func (h *distHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *distHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// normalized returns a unit-length copy of v.
func normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	n := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}
