package searcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		query       string
		intent      string
		anchor      string
		explanatory bool
	}{
		{"what drops from goblin", "drops_from", "goblin", false},
		{"What does the Goblin drop?", "drops_from", "Goblin", false},
		{"loot from Skeleton_Archer", "drops_from", "Skeleton_Archer", false},
		{"where does gold coin drop", "dropped_by", "gold coin", false},
		{"what drops Gold_Coin", "dropped_by", "Gold_Coin", false},
		{"how do I get iron ore?", "dropped_by", "iron ore", false},
		{"how to craft a torch", "craft", "torch", false},
		{"recipe for iron ingot?", "craft", "iron ingot", false},
		{"what does Torch require", "craft", "Torch", false},
		{"what uses wood stick", "used_by", "wood stick", false},
		{"who sells 'torch'?", "sold_by", "torch", false},
		{"where can i buy bread", "sold_by", "bread", false},
		{"subclasses of Block", "extends", "Block", false},
		{"what extends com.game.Block", "extends", "com.game.Block", false},
		{"what implements Tickable", "implements", "Tickable", false},
		{"members of group Tools", "members", "Tools", false},
		{"which ui shows torch", "ui_binds", "torch", false},
		{"documentation about crafting benches", "docs_for", "crafting benches", false},
		{"what drops from goblin and why", "drops_from", "goblin", true},
		{"explain how to craft a torch, and how does it work", "craft", "torch", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := Classify(tt.query)
			require.NotNil(t, m)
			assert.Equal(t, tt.intent, m.Intent.Name)
			assert.Equal(t, tt.anchor, m.Anchor)
			assert.Equal(t, tt.explanatory, m.Explanatory)
		})
	}
}

func TestClassify_NoIntent(t *testing.T) {
	for _, q := range []string{
		"how does torch crafting work",
		"explain the lighting system",
		"goblin",
		"what drops",
	} {
		assert.Nil(t, Classify(q), q)
	}
}

func TestNameVariants(t *testing.T) {
	assert.Equal(t, []string{"Torch"}, nameVariants("Torch"))
	assert.Equal(t, []string{"gold coin", "gold_coin", "goldcoin"}, nameVariants("gold coin"))
	assert.Equal(t, []string{"Wood_Stick", "Wood Stick"}, nameVariants("Wood_Stick"))
}

func TestTraversalPath_Accepts(t *testing.T) {
	open := TraversalPath{}
	assert.True(t, open.accepts("npc"))
	assert.True(t, open.accepts(""))

	drop := TraversalPath{AnchorTypes: []string{"drop"}}
	assert.True(t, drop.accepts("drop"))
	assert.False(t, drop.accepts("npc"))
}
