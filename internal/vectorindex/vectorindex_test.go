package vectorindex

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/pkg/types"
)

func randomVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func nodeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("code:node-%d", i)
	}
	return ids
}

func bruteForce(vectors [][]float32, q []float32, k int) []int {
	qn := normalized(q)
	type scored struct {
		i int
		s float32
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{i, dot(qn, normalized(v))}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].s > all[b].s })
	out := make([]int, 0, k)
	for i := 0; i < k && i < len(all); i++ {
		out = append(out, all[i].i)
	}
	return out
}

func TestBuildAndQuery(t *testing.T) {
	vectors := randomVectors(300, 32, 7)
	ix, err := Build(Descriptor{ProviderID: "local/test"}, nodeIDs(len(vectors)), vectors, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 300, ix.Len())
	assert.Equal(t, 32, ix.Descriptor().Dimension)
	assert.Equal(t, FormatVersion, ix.Descriptor().FormatVersion)

	t.Run("self is nearest", func(t *testing.T) {
		for _, i := range []int{0, 42, 299} {
			hits, err := ix.Query(vectors[i], 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, i, hits[0].Ordinal)
			assert.Equal(t, fmt.Sprintf("code:node-%d", i), hits[0].ID)
			assert.InDelta(t, 1.0, hits[0].Score, 1e-4)
		}
	})

	t.Run("recall against brute force", func(t *testing.T) {
		queries := randomVectors(20, 32, 99)
		found, total := 0, 0
		for _, q := range queries {
			want := bruteForce(vectors, q, 10)
			hits, err := ix.Query(q, 10)
			require.NoError(t, err)
			got := make(map[int]bool, len(hits))
			for _, h := range hits {
				got[h.Ordinal] = true
			}
			for _, w := range want {
				total++
				if got[w] {
					found++
				}
			}
		}
		assert.GreaterOrEqual(t, float64(found)/float64(total), 0.9)
	})

	t.Run("scores descend", func(t *testing.T) {
		hits, err := ix.Query(vectors[5], 25)
		require.NoError(t, err)
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := ix.Query(make([]float32, 8), 3)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(Descriptor{}, nodeIDs(2), [][]float32{{1, 0}, {1, 0, 0}}, Config{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Build(Descriptor{Dimension: 3}, nodeIDs(1), [][]float32{{1, 0}}, Config{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Build(Descriptor{}, nodeIDs(1), [][]float32{{1, 0}, {0, 1}}, Config{})
	assert.ErrorContains(t, err, "1 ids for 2 vectors")

	empty, err := Build(Descriptor{ProviderID: "p", Dimension: 4}, nil, nil, Config{})
	require.NoError(t, err)
	_, err = empty.Query(make([]float32, 4), 3)
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	vectors := randomVectors(50, 16, 3)
	ix, err := Build(Descriptor{ProviderID: "local/test"}, nodeIDs(len(vectors)), vectors, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, ix.Save(dir, "gamedata"))

	loaded, err := Load(dir, "gamedata", Descriptor{ProviderID: "local/test", Dimension: 16})
	require.NoError(t, err)
	assert.Equal(t, ix.Len(), loaded.Len())

	want, _ := ix.Query(vectors[10], 5)
	got, err := loaded.Query(vectors[10], 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	desc, err := ReadDescriptor(dir, "gamedata")
	require.NoError(t, err)
	assert.Equal(t, "local/test", desc.ProviderID)
	assert.Equal(t, 50, desc.Count)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestLoad_RebuildRequired(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(dir, "docs", Descriptor{ProviderID: "p"})
	assert.ErrorIs(t, err, ErrRebuildRequired, "missing index")

	ix, err := Build(Descriptor{ProviderID: "openai/small"}, nodeIDs(10), randomVectors(10, 768, 1), Config{})
	require.NoError(t, err)
	require.NoError(t, ix.Save(dir, "docs"))

	// provider dimension changed from 768 to 1536 between runs
	_, err = Load(dir, "docs", Descriptor{ProviderID: "openai/small", Dimension: 1536})
	assert.ErrorIs(t, err, ErrRebuildRequired)

	_, err = Load(dir, "docs", Descriptor{ProviderID: "jina/v3", Dimension: 768})
	assert.ErrorIs(t, err, ErrRebuildRequired)

	require.NoError(t, os.WriteFile(IndexPath(dir, "docs"), []byte("garbage"), 0o644))
	_, err = Load(dir, "docs", Descriptor{ProviderID: "openai/small", Dimension: 768})
	assert.ErrorIs(t, err, ErrRebuildRequired, "corrupt snapshot")
}

func TestManager(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, DefaultConfig())

	_, err := m.Query(types.CorpusCode, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrEmptyIndex)

	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	_, err = m.Build(types.CorpusCode, Descriptor{ProviderID: "local/a", Dimension: 3}, nodeIDs(3), vectors)
	require.NoError(t, err)

	hits, err := m.Query(types.CorpusCode, []float32{0, 0.9, 0.1}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hits[0].Ordinal)
	assert.Equal(t, "code:node-1", hits[0].ID)

	// a reader holding the old handle keeps it across a swap
	old := m.Get(types.CorpusCode)
	_, err = m.Build(types.CorpusCode, Descriptor{ProviderID: "local/a", Dimension: 3}, nodeIDs(1), vectors[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, old.Len())
	assert.Equal(t, 1, m.Get(types.CorpusCode).Len())

	fresh := NewManager(dir, DefaultConfig())
	require.NoError(t, fresh.Open(types.CorpusCode, Descriptor{ProviderID: "local/a", Dimension: 3}))
	assert.Equal(t, 1, fresh.Get(types.CorpusCode).Len())

	err = fresh.Open(types.CorpusCode, Descriptor{ProviderID: "local/b", Dimension: 3})
	assert.ErrorIs(t, err, ErrRebuildRequired)
	assert.Nil(t, fresh.Get(types.CorpusCode))

	require.NoError(t, m.Remove(types.CorpusCode))
	assert.Nil(t, m.Get(types.CorpusCode))
	_, err = os.Stat(IndexPath(dir, "code"))
	assert.True(t, os.IsNotExist(err))

	_, err = m.Build("bogus", Descriptor{}, nodeIDs(3), vectors)
	assert.ErrorIs(t, err, types.ErrUnknownCorpus)
}
