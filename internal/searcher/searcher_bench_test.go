package searcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/lorekeeper/pkg/types"
)

// BenchmarkRRF benchmarks Reciprocal Rank Fusion over two overlapping lists
func BenchmarkRRF(b *testing.B) {
	structural := make([]candidate, 20)
	semantic := make([]candidate, 20)
	for i := range structural {
		structural[i] = candidate{node: node(fmt.Sprintf("n%d", i)), source: types.SourceStructural}
		semantic[i] = candidate{node: node(fmt.Sprintf("n%d", i+10)), source: types.SourceSemantic}
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = applyRRF(DefaultRRFK, structural, semantic)
	}
}

// BenchmarkClassify benchmarks intent matching for hits and misses
func BenchmarkClassify(b *testing.B) {
	queries := []string{
		"what drops from goblin",
		"how to craft a torch",
		"members of group Tools",
		"how does the lighting system work",
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Classify(queries[i%len(queries)])
	}
}

// BenchmarkStructuralSearch benchmarks an uncached two-hop traversal
func BenchmarkStructuralSearch(b *testing.B) {
	w := newWorld(b)
	s, err := New(w.store, nil, w.vectors, Options{})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Invalidate()
		if _, err := s.Search(ctx, SearchRequest{Text: "what drops from goblin"}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkCachedSearch benchmarks a cache hit
func BenchmarkCachedSearch(b *testing.B) {
	w := newWorld(b)
	s, err := New(w.store, w.emb, w.vectors, Options{})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	req := SearchRequest{Text: "torch light source", Mode: ModeSemantic}
	if _, err := s.Search(ctx, req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = s.Search(ctx, req)
	}
}
