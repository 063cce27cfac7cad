package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/storage"
	"github.com/dshills/lorekeeper/pkg/types"
)

func testResolver() *Resolver {
	return FromLookups(map[types.Corpus]*Lookup{
		types.CorpusGamedata: NewLookup([]storage.NameEntry{
			{ID: "gamedata:Item/Wood_Stick.json", DisplayName: "Wood_Stick", DataType: "item"},
			{ID: "gamedata:Item/Iron.json", DisplayName: "Iron", DataType: "item"},
			{ID: "gamedata:Resource/Iron.json", DisplayName: "Iron", DataType: "resource"},
			{ID: "gamedata:Item/Torch.json", DisplayName: "Torch", DataType: "item"},
		}),
		types.CorpusCode: NewLookup([]storage.NameEntry{
			{ID: "class:com.game.Torch", DisplayName: "Torch", NodeType: "JavaClass"},
			{ID: "method:com.game.Torch#Torch", DisplayName: "Torch", NodeType: "JavaMethod"},
		}),
	})
}

func TestResolveStem_SingleMatch(t *testing.T) {
	r := testResolver()
	meta := map[string]any{"quantity": 2}
	edges := r.ResolveStem("wood_stick", "gamedata:Item/Torch.json", types.EdgeRequiresItem, meta)

	require.Len(t, edges, 1)
	assert.Equal(t, "gamedata:Item/Wood_Stick.json", edges[0].TargetID)
	assert.True(t, edges[0].TargetResolved)
	assert.Equal(t, meta, edges[0].Metadata)
	_, flagged := edges[0].Metadata[types.MetaMultiMatch]
	assert.False(t, flagged)
}

func TestResolveStem_MultiMatch(t *testing.T) {
	r := testResolver()
	meta := map[string]any{"quantity": 1}
	edges := r.ResolveStem("IRON", "gamedata:Item/Torch.json", types.EdgeRequiresItem, meta)

	require.Len(t, edges, 2)
	for _, e := range edges {
		assert.Equal(t, true, e.Metadata[types.MetaMultiMatch])
		assert.Equal(t, 1, e.Metadata["quantity"])
	}
	_, leaked := meta[types.MetaMultiMatch]
	assert.False(t, leaked, "caller metadata is not mutated")
}

func TestResolveStem_MissAndSelf(t *testing.T) {
	r := testResolver()
	assert.Empty(t, r.ResolveStem("Unobtainium", "x", types.EdgeRequiresItem, nil))
	assert.Empty(t, r.ResolveStem("", "x", types.EdgeRequiresItem, nil))
	assert.Empty(t, r.ResolveStem("Torch", "gamedata:Item/Torch.json", types.EdgeRequiresItem, nil))
}

func TestResolve_SelfMatchDoesNotCountTowardsMultiMatch(t *testing.T) {
	r := testResolver()
	edges := r.Resolve(types.CorpusCode, "Torch", "class:com.game.Torch", types.EdgeContains, nil, nil)

	require.Len(t, edges, 1)
	assert.Equal(t, "method:com.game.Torch#Torch", edges[0].TargetID)
	_, flagged := edges[0].Metadata[types.MetaMultiMatch]
	assert.False(t, flagged)
}

func TestResolve_AcceptFilter(t *testing.T) {
	r := testResolver()
	classesOnly := func(e Entry) bool { return e.NodeType == "JavaClass" }

	edges := r.Resolve(types.CorpusCode, "torch", "gamedata:Item/Torch.json", types.EdgeImplementedBy, nil, classesOnly)
	require.Len(t, edges, 1)
	assert.Equal(t, "class:com.game.Torch", edges[0].TargetID)
	assert.Nil(t, edges[0].Metadata)

	all := r.Resolve(types.CorpusCode, "torch", "gamedata:Item/Torch.json", types.EdgeImplementedBy, nil, nil)
	assert.Len(t, all, 2)
}

func TestBuild_FromStore(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.UpsertNodes(ctx, []*types.Node{{
		ID: "gamedata:NPC/Goblin.json", Corpus: types.CorpusGamedata, NodeType: "GameData",
		DataType: "npc", DisplayName: "Goblin", OwningFile: "NPC/Goblin.json", ChunkIndex: -1,
	}}))

	r, err := Build(ctx, store, types.CorpusGamedata, types.CorpusCode)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Lookup(types.CorpusGamedata).Len())
	assert.Equal(t, 0, r.Lookup(types.CorpusCode).Len())

	found := r.Lookup(types.CorpusGamedata).Find("GOBLIN")
	require.Len(t, found, 1)
	assert.Equal(t, "npc", found[0].DataType)
	assert.Nil(t, r.Lookup(types.CorpusDocs).Find("goblin"))
}
