package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func gamedataNode(path string) *types.Node {
	return &types.Node{
		ID:          types.NodeID(types.CorpusGamedata, path),
		Corpus:      types.CorpusGamedata,
		NodeType:    "GameData",
		DataType:    "item",
		DisplayName: types.FileStem(path),
		OwningFile:  path,
		Content:     `{}`,
		ChunkIndex:  -1,
	}
}

func codeNode(name string) *types.Node {
	return &types.Node{
		ID:          "class:com.game." + name,
		Corpus:      types.CorpusCode,
		NodeType:    "JavaClass",
		DisplayName: name,
		OwningFile:  "com/game/" + name + ".java",
		ChunkIndex:  -1,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	v, err := storage.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, ApplyMigrations(ctx, storage.db))

	var count int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(AllMigrations), count)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, storage.db))
	v, err := storage.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)

	_, err = storage.GetCorpusState(ctx, types.CorpusCode)
	assert.Error(t, err)

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	_, err = storage.GetCorpusState(ctx, types.CorpusCode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertNodes(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	n := gamedataNode("Item/Torch.json")
	n.Metadata = map[string]any{"tier": "basic"}
	n.Embedding = []float32{0.1, 0.2, 0.3}
	n.EmbeddingProvider = "local/hash"
	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{n}))

	got, err := storage.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Torch", got.DisplayName)
	assert.Equal(t, "basic", got.Metadata["tier"])
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.Equal(t, -1, got.ChunkIndex)

	// Last write wins
	n.Content = `{"Recipe":{}}`
	n.Embedding = nil
	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{n}))
	got, err = storage.GetNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"Recipe":{}}`, got.Content)
	assert.False(t, got.HasEmbedding())

	_, err = storage.GetNode(ctx, "gamedata:missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindNodesByDisplayName_CaseInsensitive(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{
		gamedataNode("NPC/Goblin.json"),
		codeNode("Goblin"),
	}))

	all, err := storage.FindNodesByDisplayName(ctx, "", "goblin")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	gd, err := storage.FindNodesByDisplayName(ctx, types.CorpusGamedata, "GOBLIN")
	require.NoError(t, err)
	require.Len(t, gd, 1)
	assert.Equal(t, "gamedata:NPC/Goblin.json", gd[0].ID)
}

func TestDeleteNodesByOwningFile(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{
		gamedataNode("Item/A.json"),
		gamedataNode("Item/B.json"),
	}))

	deleted, err := storage.DeleteNodesByOwningFile(ctx, types.CorpusGamedata, []string{"Item/A.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gamedata:Item/A.json"}, deleted)

	// Same path in another corpus is untouched
	deleted, err = storage.DeleteNodesByOwningFile(ctx, types.CorpusDocs, []string{"Item/B.json"})
	require.NoError(t, err)
	assert.Empty(t, deleted)

	exists, err := storage.NodesExist(ctx, []string{"gamedata:Item/A.json", "gamedata:Item/B.json"})
	require.NoError(t, err)
	assert.False(t, exists["gamedata:Item/A.json"])
	assert.True(t, exists["gamedata:Item/B.json"])
}

func TestUpsertEdges_IdempotentAndNoSelfEdges(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	e := types.Edge{
		SourceID: "gamedata:Item/Torch.json", TargetID: "gamedata:Item/Wood_Stick.json",
		Type: types.EdgeRequiresItem, OwningFile: "Item/Torch.json", TargetResolved: true,
		Metadata: map[string]any{"quantity": float64(1)},
	}
	self := types.Edge{SourceID: "a", TargetID: "a", Type: types.EdgeHasMember, OwningFile: "g.json"}
	require.NoError(t, storage.UpsertEdges(ctx, []types.Edge{e, e, self}))

	out, err := storage.EdgesFrom(ctx, e.SourceID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, float64(1), out[0].Metadata["quantity"])

	in, err := storage.EdgesTo(ctx, e.TargetID, types.EdgeRequiresItem)
	require.NoError(t, err)
	assert.Len(t, in, 1)

	in, err = storage.EdgesTo(ctx, e.TargetID, types.EdgeDropsItem)
	require.NoError(t, err)
	assert.Empty(t, in)

	selfOut, err := storage.EdgesFrom(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, selfOut)
}

// Re-indexing gamedata must not remove IMPLEMENTED_BY edges or edges owned by
// another corpus that share an owning path.
func TestScopedDelete_RespectsAllowList(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	edges := []types.Edge{
		{SourceID: "gamedata:Item/Chest.json", TargetID: "class:com.game.ChestBlock", Type: types.EdgeImplementedBy, OwningFile: "Item/Chest.json", TargetResolved: true},
		{SourceID: "gamedata:Item/Chest.json", TargetID: "gamedata:Item/Plank.json", Type: types.EdgeRequiresItem, OwningFile: "Item/Chest.json", TargetResolved: true},
		{SourceID: "docs:Item/Chest.json", TargetID: "gamedata:Item/Chest.json", Type: types.EdgeDocsReferences, OwningFile: "Item/Chest.json", TargetResolved: true},
	}
	require.NoError(t, storage.UpsertEdges(ctx, edges))

	n, err := storage.ScopedDelete(ctx, OwnerFilter{Files: []string{"Item/Chest.json"}}, []types.EdgeType{types.EdgeRequiresItem})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := storage.EdgesFrom(ctx, "gamedata:Item/Chest.json")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, types.EdgeImplementedBy, out[0].Type)

	docs, err := storage.EdgesFrom(ctx, "docs:Item/Chest.json")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestScopedDelete_EmptyAllowList(t *testing.T) {
	storage := setupTestDB(t)
	_, err := storage.ScopedDelete(context.Background(), OwnerFilter{Files: []string{"x"}}, nil)
	assert.ErrorIs(t, err, ErrEmptyAllowList)
}

func TestDanglingEdges(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertEdges(ctx, []types.Edge{
		{SourceID: "s1", TargetID: "t1", Type: types.EdgeDropsItem, OwningFile: "f", TargetResolved: true},
		{SourceID: "s1", TargetID: types.VirtualRef("particle", "Fire"), Type: types.EdgeSpawnsParticle, OwningFile: "f"},
		{SourceID: "s2", TargetID: types.PendingRef(types.CorpusCode, "Chest"), Type: types.EdgeImplementedBy, OwningFile: "g"},
	}))

	marked, err := storage.MarkTargetsUnresolved(ctx, []string{"t1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	dangling, err := storage.ListDanglingEdges(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, dangling, 2, "virtual references are never dangling")
	assert.Equal(t, "t1", dangling[0].Edge.TargetID)
	assert.Less(t, dangling[0].RowID, dangling[1].RowID)

	page, err := storage.ListDanglingEdges(ctx, dangling[0].RowID, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)

	require.NoError(t, storage.MarkEdgeResolved(ctx, dangling[0].Edge))
	pending := dangling[1].Edge
	resolved := pending
	resolved.TargetID = "class:com.game.Chest"
	resolved.TargetResolved = true
	require.NoError(t, storage.ReplaceEdge(ctx, pending, []types.Edge{resolved}))

	dangling, err = storage.ListDanglingEdges(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, dangling)

	out, err := storage.EdgesFrom(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "class:com.game.Chest", out[0].TargetID)
	assert.True(t, out[0].TargetResolved)
}

func TestFileHashes(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpdateHashes(ctx, types.CorpusGamedata, []FileHash{
		{Path: "a.json", Hash: "h1"},
		{Path: "b.json", Hash: "h2", Status: FileError},
	}))
	require.NoError(t, storage.UpdateHashes(ctx, types.CorpusDocs, []FileHash{{Path: "a.json", Hash: "d1"}}))

	hashes, err := storage.GetFileHashes(ctx, types.CorpusGamedata)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.json": "h1", "b.json": "h2"}, hashes)

	rows, err := storage.ListFileHashes(ctx, types.CorpusGamedata)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, FileError, rows[1].Status)

	require.NoError(t, storage.RemoveHashes(ctx, types.CorpusGamedata, []string{"a.json"}))
	hashes, err = storage.GetFileHashes(ctx, types.CorpusGamedata)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b.json": "h2"}, hashes)

	docs, err := storage.GetFileHashes(ctx, types.CorpusDocs)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestChunkIndexMapping(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	a := gamedataNode("Item/A.json")
	a.Embedding = []float32{1, 0}
	b := gamedataNode("Item/B.json")
	b.Embedding = []float32{0, 1}
	c := gamedataNode("Item/C.json")
	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{a, b, c}))

	embedded, err := storage.ListEmbeddedNodes(ctx, types.CorpusGamedata)
	require.NoError(t, err)
	require.Len(t, embedded, 2)
	assert.Equal(t, a.ID, embedded[0].ID)

	require.NoError(t, storage.AssignChunkIndexes(ctx, types.CorpusGamedata, []string{a.ID, b.ID}))
	got, err := storage.GetNode(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ChunkIndex)
	got, err = storage.GetNode(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, got.ChunkIndex)

	mapped, err := storage.GetNodes(ctx, []string{b.ID, a.ID, "gamedata:Item/Missing.json"})
	require.NoError(t, err)
	require.Len(t, mapped, 2)
	assert.Equal(t, "Item/B.json", mapped[b.ID].OwningFile)
	assert.Equal(t, []float32{1, 0}, mapped[a.ID].Embedding)
}

func TestWipeCorpus(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertNodes(ctx, []*types.Node{codeNode("ChestBlock"), gamedataNode("Item/Chest.json")}))
	require.NoError(t, storage.UpsertEdges(ctx, []types.Edge{
		{SourceID: "gamedata:Item/Chest.json", TargetID: "class:com.game.ChestBlock", Type: types.EdgeImplementedBy, OwningFile: "Item/Chest.json", TargetResolved: true},
	}))
	require.NoError(t, storage.UpdateHashes(ctx, types.CorpusCode, []FileHash{{Path: "com/game/ChestBlock.java", Hash: "x"}}))
	require.NoError(t, storage.SetCorpusState(ctx, CorpusState{Corpus: types.CorpusCode, TaxonomyVersion: "1.0.0", TextBuilderVersion: "1.0.0"}))

	require.NoError(t, storage.WipeCorpus(ctx, types.CorpusCode, []types.EdgeType{types.EdgeExtends, types.EdgeImplements, types.EdgeContains}))

	stats, err := storage.GetCorpusStats(ctx, types.CorpusCode)
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.TrackedFiles)

	// The gamedata edge survives but now dangles
	out, err := storage.EdgesFrom(ctx, "gamedata:Item/Chest.json")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].TargetResolved)

	_, err = storage.GetCorpusState(ctx, types.CorpusCode)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := storage.WithTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.UpsertNodes(ctx, []*types.Node{gamedataNode("Item/A.json")}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = storage.GetNode(ctx, "gamedata:Item/A.json")
	assert.ErrorIs(t, err, ErrNotFound)

	err = storage.WithTx(ctx, func(tx Tx) error {
		return tx.UpsertNodes(ctx, []*types.Node{gamedataNode("Item/A.json")})
	})
	require.NoError(t, err)
	_, err = storage.GetNode(ctx, "gamedata:Item/A.json")
	assert.NoError(t, err)
}

func TestIndexRunsAndErrors(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	run := &IndexRun{ID: "run-1", Corpus: types.CorpusDocs}
	require.NoError(t, storage.CreateIndexRun(ctx, run))
	run.Status = RunSucceeded
	run.FilesAdded = 3
	require.NoError(t, storage.FinishIndexRun(ctx, run))

	last, err := storage.LastIndexRun(ctx, types.CorpusDocs)
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, last.Status)
	assert.Equal(t, 3, last.FilesAdded)

	_, err = storage.LastIndexRun(ctx, types.CorpusCode)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, storage.LogIndexErrors(ctx, []IndexError{
		{Corpus: types.CorpusGamedata, File: "bad.json", Type: "parse", Message: "unexpected EOF"},
	}))
	errs, err := storage.ListIndexErrors(ctx, types.CorpusGamedata, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "bad.json", errs[0].File)

	require.NoError(t, storage.ClearIndexErrors(ctx, types.CorpusGamedata, []string{"bad.json"}))
	errs, err = storage.ListIndexErrors(ctx, types.CorpusGamedata, 10)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestVectorSerialization(t *testing.T) {
	v := []float32{1.5, -2.25, 0}
	assert.Equal(t, v, DeserializeVector(SerializeVector(v)))
	assert.Empty(t, DeserializeVector(nil))
}
