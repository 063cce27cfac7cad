package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/internal/searcher"
	"github.com/dshills/lorekeeper/internal/vectorindex"
	"github.com/dshills/lorekeeper/pkg/types"
)

func TestParseCorpusFlags(t *testing.T) {
	corpora, err := parseCorpusFlags([]string{"Gamedata", " docs "})
	require.NoError(t, err)
	assert.Equal(t, []types.Corpus{types.CorpusGamedata, types.CorpusDocs}, corpora)

	_, err = parseCorpusFlags([]string{"assets"})
	assert.ErrorIs(t, err, types.ErrUnknownCorpus)
}

func TestPrintRunReports(t *testing.T) {
	var buf bytes.Buffer
	printRunReports(&buf, []app.RunReport{
		{Corpus: types.CorpusGamedata, Status: "succeeded", FilesAdded: 3, NodesEmbedded: 3, EdgesWritten: 5, DurationMS: 12},
		{Corpus: types.CorpusDocs, Status: "failed", Error: "index docs: boom"},
	})
	out := buf.String()
	assert.Contains(t, out, "CORPUS")
	assert.Contains(t, out, "gamedata")
	assert.Contains(t, out, "12ms")
	assert.Contains(t, out, "docs: index docs: boom")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	printStatus(&buf, []app.StatusReport{
		{Corpus: types.CorpusCode},
		{
			Corpus:      types.CorpusGamedata,
			Configured:  true,
			Nodes:       2,
			LastRun:     &app.RunReport{Status: "noop"},
			VectorIndex: &vectorindex.Descriptor{Count: 2, Dimension: 64},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "2@64d")
	assert.Contains(t, out, "noop")
}

func TestPrintSearch(t *testing.T) {
	var buf bytes.Buffer
	printSearch(&buf, &searcher.SearchResponse{
		Route:    searcher.RouteStructural,
		Intent:   "drops_from",
		Anchor:   "goblin",
		Duration: 1500 * time.Microsecond,
		Results: []types.RankedResult{{
			NodeID:      "gamedata:Item/Gold_Coin.json",
			DisplayName: "Gold_Coin",
			Corpus:      types.CorpusGamedata,
			DataType:    "item",
			Rank:        1,
			Score:       1.0 / 61,
			Source:      types.SourceStructural,
			Path:        []types.EdgeType{types.EdgeDropsOnDeath, types.EdgeDropsItem},
		}},
	})
	out := buf.String()
	assert.Contains(t, out, `intent: drops_from  anchor: "goblin"`)
	assert.Contains(t, out, "Gold_Coin  [gamedata/item]")
	assert.Contains(t, out, "via DROPS_ON_DEATH -> DROPS_ITEM")
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "Version: dev")
}
