package searcher

import (
	"regexp"
	"strings"

	"github.com/dshills/lorekeeper/internal/extractor"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Direction is the side of an edge a hop walks along.
type Direction int

const (
	Out Direction = iota // source -> target
	In                   // target -> source
)

// Hop is one typed edge step of a traversal.
type Hop struct {
	Edge types.EdgeType
	Dir  Direction
}

// TraversalPath is a hop sequence started from the anchor. AnchorTypes, when
// set, restricts the path to anchors of those data types.
type TraversalPath struct {
	Hops        []Hop
	AnchorTypes []string
}

func (p TraversalPath) accepts(dataType string) bool {
	if len(p.AnchorTypes) == 0 {
		return true
	}
	for _, t := range p.AnchorTypes {
		if t == dataType {
			return true
		}
	}
	return false
}

// Intent is a structural question shape. Every pattern captures the anchor
// name in its first group.
type Intent struct {
	Name          string
	Patterns      []*regexp.Regexp
	Paths         []TraversalPath
	AnchorCorpora []types.Corpus
}

// anchorEnd stops the lazy anchor capture at punctuation or a joining word so
// trailing clauses are left for hybrid cue detection.
const anchorEnd = `(?:\s*[?.!,;](?:\s|$)|\s+(?:and|or|but|so|because|then|when|while)\b|$)`

func cue(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + prefix + `\s+["'` + "`" + `]?(.+?)["'` + "`" + `]?` + anchorEnd)
}

func out(t types.EdgeType) Hop { return Hop{Edge: t, Dir: Out} }
func in(t types.EdgeType) Hop  { return Hop{Edge: t, Dir: In} }

var gamedataFirst = []types.Corpus{types.CorpusGamedata, types.CorpusCode}

// Intents are tried in order; the first pattern that matches wins, so the
// narrower "what drops from X" precedes "what drops X".
var Intents = []Intent{
	{
		Name: "drops_from",
		Patterns: []*regexp.Regexp{
			cue(`what\s+(?:drops|is\s+dropped)\s+(?:from|by)`),
			cue(`loot\s+(?:from|of)`),
			regexp.MustCompile(`(?i)\bwhat\s+(?:does|do|can)\s+(?:an?\s+|the\s+)?(.+?)\s+drop\b`),
		},
		Paths: []TraversalPath{
			{Hops: []Hop{out(types.EdgeDropsOnDeath), out(types.EdgeDropsItem)}},
			{Hops: []Hop{out(types.EdgeDropsItem)}, AnchorTypes: []string{extractor.DataDrop}},
		},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "dropped_by",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bwhere\s+(?:does|do|can)\s+(?:an?\s+|the\s+)?(.+?)\s+drop\b`),
			cue(`(?:what|who)\s+drops`),
			cue(`how\s+(?:do\s+(?:i|you)\s+|to\s+|can\s+i\s+)(?:get|obtain|farm)`),
		},
		Paths: []TraversalPath{
			{Hops: []Hop{in(types.EdgeDropsItem), in(types.EdgeDropsOnDeath)}},
		},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "craft",
		Patterns: []*regexp.Regexp{
			cue(`how\s+(?:do\s+(?:i|you)\s+|to\s+|can\s+i\s+)(?:craft|make|build)`),
			cue(`(?:recipe|ingredients)\s+(?:for|of)`),
			regexp.MustCompile(`(?i)\bwhat\s+does\s+(?:an?\s+|the\s+)?(.+?)\s+(?:require|need|cost)\b`),
		},
		Paths: []TraversalPath{
			{Hops: []Hop{out(types.EdgeRequiresItem)}},
			{Hops: []Hop{in(types.EdgeProducesItem), out(types.EdgeRequiresItem)}},
		},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "used_by",
		Patterns: []*regexp.Regexp{
			cue(`what\s+(?:uses|requires|needs)`),
			regexp.MustCompile(`(?i)\bwhat\s+is\s+(?:an?\s+|the\s+)?(.+?)\s+used\s+(?:for|in)\b`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeRequiresItem)}}},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "sold_by",
		Patterns: []*regexp.Regexp{
			cue(`(?:who|which\s+shops?)\s+sells?`),
			cue(`where\s+(?:can\s+i\s+|to\s+|do\s+i\s+)buy`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeOfferedInShop)}}},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "extends",
		Patterns: []*regexp.Regexp{
			cue(`what\s+(?:extends|inherits\s+from)`),
			cue(`subclass(?:es)?\s+of`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeExtends)}}},
		AnchorCorpora: []types.Corpus{types.CorpusCode},
	},
	{
		Name: "implements",
		Patterns: []*regexp.Regexp{
			cue(`what\s+implements`),
			cue(`implementations\s+of`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeImplements)}}},
		AnchorCorpora: []types.Corpus{types.CorpusCode},
	},
	{
		Name: "members",
		Patterns: []*regexp.Regexp{
			cue(`members\s+of`),
			cue(`what\s+is\s+in\s+(?:the\s+)?group`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{out(types.EdgeHasMember)}}},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "ui_binds",
		Patterns: []*regexp.Regexp{
			cue(`(?:which|what)\s+(?:ui|screens?|pages?|windows?)\s+(?:shows?|displays?|uses?)`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeUIBindsTo)}}},
		AnchorCorpora: gamedataFirst,
	},
	{
		Name: "docs_for",
		Patterns: []*regexp.Regexp{
			cue(`(?:docs|documentation|guides?)\s+(?:for|about|on)`),
		},
		Paths:         []TraversalPath{{Hops: []Hop{in(types.EdgeDocsReferences)}}},
		AnchorCorpora: gamedataFirst,
	},
}

// explanatory marks a question that wants prose as well as a list.
var explanatory = regexp.MustCompile(`(?i)\b(?:how\s+(?:does|do|is)|why|explain|works?|working|mechanics?)\b`)

// Match is a classified structural query.
type Match struct {
	Intent *Intent
	Anchor string
	// Explanatory is set when a hybrid cue appears outside the matched
	// pattern.
	Explanatory bool
}

// Classify returns the first intent whose pattern matches text, or nil.
func Classify(text string) *Match {
	for i := range Intents {
		intent := &Intents[i]
		for _, re := range intent.Patterns {
			loc := re.FindStringSubmatchIndex(text)
			if loc == nil || loc[2] < 0 {
				continue
			}
			anchor := cleanAnchor(text[loc[2]:loc[3]])
			if anchor == "" {
				continue
			}
			rest := text[:loc[0]] + " " + text[loc[1]:]
			return &Match{
				Intent:      intent,
				Anchor:      anchor,
				Explanatory: explanatory.MatchString(rest),
			}
		}
	}
	return nil
}

var leadingArticle = regexp.MustCompile(`(?i)^(?:the|an?|some|npc|group)\s+`)

func cleanAnchor(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "\"'`?.!")
	for {
		trimmed := leadingArticle.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.TrimSuffix(s, "'s")
	return strings.TrimSpace(s)
}

// nameVariants lists the spellings an anchor is looked up under: as typed,
// with spaces as underscores, and with spaces removed.
func nameVariants(anchor string) []string {
	variants := []string{anchor}
	if strings.Contains(anchor, " ") {
		variants = append(variants,
			strings.ReplaceAll(anchor, " ", "_"),
			strings.ReplaceAll(anchor, " ", ""))
	}
	if strings.Contains(anchor, "_") {
		variants = append(variants, strings.ReplaceAll(anchor, "_", " "))
	}
	return variants
}
