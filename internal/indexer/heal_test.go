package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

func seedPending(t *testing.T, store *storage.SQLiteStorage, n int) {
	t.Helper()
	ctx := context.Background()
	var edges []types.Edge
	for i := 0; i < n; i++ {
		edges = append(edges, types.Edge{
			SourceID:   fmt.Sprintf("client:ui/Page%d.ui", i),
			TargetID:   types.PendingRef(types.CorpusGamedata, fmt.Sprintf("Missing_%d", i)),
			Type:       types.EdgeUIBindsTo,
			OwningFile: fmt.Sprintf("ui/Page%d.ui", i),
		})
	}
	edges = append(edges, types.Edge{
		SourceID:   gd("Item/Torch.json"),
		TargetID:   types.VirtualRef("particle", "Fire"),
		Type:       types.EdgeSpawnsParticle,
		OwningFile: "Item/Torch.json",
	})
	require.NoError(t, store.UpsertEdges(ctx, edges))
}

func TestHealer_SweepIsBounded(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	seedPending(t, store, 5)

	h := NewHealer(store, 2, 2, nil)
	stats, err := h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 4, stats.Scanned)
	assert.True(t, stats.More)
	assert.Zero(t, stats.Rewritten)

	h = NewHealer(store, 10, 2, nil)
	stats, err = h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, 5, stats.Scanned, "virtual refs are never scanned")
	assert.False(t, stats.More)
}

func TestHealer_RewritesPendingAndReattaches(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	seedPending(t, store, 2)

	require.NoError(t, store.UpsertNodes(ctx, []*types.Node{{
		ID:          gd("Item/Missing_1.json"),
		Corpus:      types.CorpusGamedata,
		NodeType:    "GameData",
		DisplayName: "Missing_1",
		OwningFile:  "Item/Missing_1.json",
		ChunkIndex:  -1,
	}}))
	dangling := types.Edge{
		SourceID:   "docs:a.md",
		TargetID:   gd("Item/Missing_1.json"),
		Type:       types.EdgeDocsReferences,
		OwningFile: "a.md",
	}
	require.NoError(t, store.UpsertEdges(ctx, []types.Edge{dangling}))

	stats, err := NewHealer(store, 100, 1, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rewritten)
	assert.Equal(t, 1, stats.Reattached)

	edges, err := store.EdgesFrom(ctx, "client:ui/Page1.ui")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, gd("Item/Missing_1.json"), edges[0].TargetID)
	assert.True(t, edges[0].TargetResolved)
	assert.Equal(t, "ui/Page1.ui", edges[0].OwningFile)
	assert.NotContains(t, edges[0].Metadata, types.MetaPendingFor)

	edges, err = store.EdgesFrom(ctx, "docs:a.md")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].TargetResolved)

	edges, err = store.EdgesFrom(ctx, "client:ui/Page0.ui")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.False(t, edges[0].TargetResolved, "still unknown")
}

func TestHealer_BackgroundTrigger(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedPending(t, store, 1)
	require.NoError(t, store.UpsertNodes(ctx, []*types.Node{{
		ID: gd("Item/Missing_0.json"), Corpus: types.CorpusGamedata, NodeType: "GameData",
		DisplayName: "Missing_0", OwningFile: "Item/Missing_0.json", ChunkIndex: -1,
	}}))

	h := NewHealer(store, 10, 1, nil)
	go h.Run(ctx)
	h.Trigger()
	h.Trigger()

	assert.Eventually(t, func() bool {
		var resolved bool
		_ = h.exclusive(func() error {
			edges, err := store.EdgesFrom(ctx, "client:ui/Page0.ui")
			resolved = err == nil && len(edges) == 1 && edges[0].TargetResolved
			return nil
		})
		return resolved
	}, 2*time.Second, 10*time.Millisecond)
}
