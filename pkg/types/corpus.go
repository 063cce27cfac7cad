package types

import (
	"fmt"
	"strings"
)

// Corpus identifies one of the independently indexed sources.
type Corpus string

const (
	CorpusCode     Corpus = "code"
	CorpusGamedata Corpus = "gamedata"
	CorpusClient   Corpus = "client"
	CorpusDocs     Corpus = "docs"
)

// AllCorpora lists every corpus in declaration order.
var AllCorpora = []Corpus{CorpusCode, CorpusGamedata, CorpusClient, CorpusDocs}

// Valid reports whether c is a known corpus.
func (c Corpus) Valid() bool {
	switch c {
	case CorpusCode, CorpusGamedata, CorpusClient, CorpusDocs:
		return true
	default:
		return false
	}
}

func (c Corpus) String() string {
	return string(c)
}

// ParseCorpus converts a user-supplied name into a Corpus.
func ParseCorpus(name string) (Corpus, error) {
	c := Corpus(strings.ToLower(strings.TrimSpace(name)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCorpus, name)
	}
	return c, nil
}

// ParseCorpora converts a list of names, returning all corpora when names is empty.
func ParseCorpora(names []string) ([]Corpus, error) {
	if len(names) == 0 {
		return append([]Corpus(nil), AllCorpora...), nil
	}
	seen := make(map[Corpus]bool, len(names))
	out := make([]Corpus, 0, len(names))
	for _, n := range names {
		c, err := ParseCorpus(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}
