package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCorpus(t *testing.T) {
	c, err := ParseCorpus(" GameData ")
	require.NoError(t, err)
	assert.Equal(t, CorpusGamedata, c)

	_, err = ParseCorpus("assets")
	assert.ErrorIs(t, err, ErrUnknownCorpus)
}

func TestParseCorpora(t *testing.T) {
	all, err := ParseCorpora(nil)
	require.NoError(t, err)
	assert.Equal(t, AllCorpora, all)

	some, err := ParseCorpora([]string{"docs", "code", "docs"})
	require.NoError(t, err)
	assert.Equal(t, []Corpus{CorpusDocs, CorpusCode}, some)
}

func TestEdgeTypes(t *testing.T) {
	assert.Len(t, AllEdgeTypes, 18)
	for _, et := range AllEdgeTypes {
		assert.True(t, et.Valid(), et)
	}

	et, err := ParseEdgeType("drops_item")
	require.NoError(t, err)
	assert.Equal(t, EdgeDropsItem, et)

	_, err = ParseEdgeType("LIKES")
	assert.ErrorIs(t, err, ErrUnknownEdgeType)
}

func TestVirtualAndPendingRefs(t *testing.T) {
	ref := VirtualRef("bench", "Workbench")
	assert.Equal(t, "virtual:bench:Workbench", ref)
	assert.True(t, IsVirtualRef(ref))
	assert.False(t, IsVirtualRef("gamedata:Item/Torch.json"))

	p := PendingRef(CorpusCode, "ChestBlock")
	corpus, name, ok := ParsePendingRef(p)
	require.True(t, ok)
	assert.Equal(t, CorpusCode, corpus)
	assert.Equal(t, "chestblock", name)

	_, _, ok = ParsePendingRef("virtual:bench:x")
	assert.False(t, ok)
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "Torch", FileStem("Item/Items/Torch.json"))
	assert.Equal(t, "Drop_Goblin", FileStem(`Drops\Drop_Goblin.json`))
	assert.Equal(t, "README", FileStem("README"))
}

func TestChunkValidate(t *testing.T) {
	c := Chunk{ID: "docs:a.md", RelativePath: "a.md", ContentHash: "abc"}
	require.NoError(t, c.Validate())

	c.ContentHash = ""
	assert.ErrorIs(t, c.Validate(), ErrInvalidChunk)
}
