package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/lorekeeper/internal/config"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Node types assigned to chunks of the file-backed corpora. Code chunks
// carry their own type in DeclaredType.
const (
	NodeTypeGameData = "GameData"
	NodeTypeClientUI = "ClientUI"
	NodeTypeDoc      = "Doc"
	NodeTypeCode     = "CodeChunk"
)

// Source produces the chunks of one corpus. Both methods must be
// deterministic for unchanged inputs.
type Source interface {
	Corpus() types.Corpus

	// Hashes returns the content hash of every file in the corpus, keyed by
	// slash-separated path relative to the source root.
	Hashes(ctx context.Context) (map[string]string, error)

	// Chunks returns the chunks of the given files, ordered by path then id.
	Chunks(ctx context.Context, paths []string) ([]types.Chunk, error)
}

// Rejection is a record a source skipped because it could not be read.
type Rejection struct {
	Path string // file the record is attributed to
	Line int
	Err  error

	digest string
}

// IsInvalidChunk reports whether the record decoded but failed validation,
// as opposed to not decoding at all.
func (r Rejection) IsInvalidChunk() bool {
	return errors.Is(r.Err, types.ErrInvalidChunk)
}

// RejectingSource is implemented by sources that skip unreadable records
// instead of failing the pass.
type RejectingSource interface {
	Source
	ReadChunks(ctx context.Context, paths []string) ([]types.Chunk, []Rejection, error)
}

var defaultExtensions = map[types.Corpus][]string{
	types.CorpusCode:     {".java"},
	types.CorpusGamedata: {".json"},
	types.CorpusClient:   {".ui", ".xml", ".html"},
	types.CorpusDocs:     {".md", ".markdown"},
}

// New builds the source configured for corpus.
func New(corpus types.Corpus, cfg *config.Source, workers int) (Source, error) {
	if !corpus.Valid() {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownCorpus, corpus)
	}
	if cfg == nil || cfg.Root == "" {
		return nil, fmt.Errorf("corpus %s has no source root", corpus)
	}
	switch cfg.Kind {
	case config.KindJSONL:
		return NewJSONLSource(corpus, cfg.Root), nil
	case config.KindFiles, "":
		return NewFileSource(corpus, FileOptions{
			Root:       cfg.Root,
			Extensions: cfg.Extensions,
			Exclude:    cfg.Exclude,
			TypeDirs:   cfg.TypeDirs,
			Workers:    workers,
		}), nil
	default:
		return nil, fmt.Errorf("corpus %s: unknown source kind %q", corpus, cfg.Kind)
	}
}

// NodeType returns the node type for a chunk of corpus.
func NodeType(corpus types.Corpus, c *types.Chunk) string {
	switch corpus {
	case types.CorpusGamedata:
		return NodeTypeGameData
	case types.CorpusClient:
		return NodeTypeClientUI
	case types.CorpusDocs:
		return NodeTypeDoc
	}
	if c.DeclaredType != "" {
		return c.DeclaredType
	}
	return NodeTypeCode
}

// relSlash returns p relative to root with forward slashes.
func relSlash(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[strings.TrimPrefix(filepath.ToSlash(p), "./")] = true
	}
	return set
}
