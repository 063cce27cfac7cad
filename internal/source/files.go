package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/lorekeeper/internal/hashtracker"
	"github.com/dshills/lorekeeper/pkg/types"
)

// FileOptions configures a FileSource.
type FileOptions struct {
	Root       string
	Extensions []string // defaults per corpus when empty
	Exclude    []string // glob patterns matched against the relative path and the base name
	TypeDirs   map[string]string
	Workers    int // parallel hashing workers, NumCPU when zero
}

// FileSource turns every matching file under a root into one chunk.
type FileSource struct {
	corpus   types.Corpus
	root     string
	exts     map[string]bool
	exclude  []string
	typeDirs map[string]string
	workers  int
}

// NewFileSource creates a file-backed source for corpus.
func NewFileSource(corpus types.Corpus, opts FileOptions) *FileSource {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = defaultExtensions[corpus]
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = true
	}

	typeDirs := make(map[string]string, len(opts.TypeDirs))
	for dir, dataType := range opts.TypeDirs {
		typeDirs[strings.ToLower(dir)] = dataType
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &FileSource{
		corpus:   corpus,
		root:     opts.Root,
		exts:     extSet,
		exclude:  opts.Exclude,
		typeDirs: typeDirs,
		workers:  workers,
	}
}

func (s *FileSource) Corpus() types.Corpus {
	return s.corpus
}

// discover lists matching files, skipping hidden directories.
func (s *FileSource) discover(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := relSlash(s.root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && (strings.HasPrefix(d.Name(), ".") || s.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.exts[strings.ToLower(filepath.Ext(p))] || s.excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	sort.Strings(files)
	return files, nil
}

func (s *FileSource) excluded(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range s.exclude {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// Hashes hashes all matching files in parallel.
func (s *FileSource) Hashes(ctx context.Context) (map[string]string, error) {
	files, err := s.discover(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	hashes := make(map[string]string, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := hashtracker.HashFile(filepath.Join(s.root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("hash %s: %w", rel, err)
			}
			mu.Lock()
			hashes[rel] = h
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// Chunks reads the given files and builds one chunk per file.
func (s *FileSource) Chunks(ctx context.Context, paths []string) ([]types.Chunk, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	chunks := make([]types.Chunk, 0, len(sorted))
	for _, rel := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		chunks = append(chunks, s.chunk(rel, data))
	}
	return chunks, nil
}

func (s *FileSource) chunk(rel string, data []byte) types.Chunk {
	hash := hashtracker.HashBytes(data)
	raw := string(trimBOM(data))
	stem := types.FileStem(rel)

	c := types.Chunk{
		ID:           types.NodeID(s.corpus, rel),
		RelativePath: rel,
		ContentHash:  hash,
		RawContent:   raw,
		DisplayName:  stem,
	}

	switch s.corpus {
	case types.CorpusGamedata:
		c.DeclaredType = s.declaredType(rel)
		c.EmbeddingText = GamedataText(stem, raw)
	case types.CorpusClient:
		c.EmbeddingText = MarkupText(stem, raw)
	case types.CorpusDocs:
		if title := MarkdownTitle(raw); title != "" {
			c.DisplayName = title
		}
		c.EmbeddingText = MarkdownText(c.DisplayName, raw)
	default:
		c.EmbeddingText = truncate(stem + "\n" + raw)
	}
	return c
}

// declaredType looks the deepest directory up in TypeDirs.
func (s *FileSource) declaredType(rel string) string {
	if len(s.typeDirs) == 0 {
		return ""
	}
	dirs := strings.Split(path.Dir(rel), "/")
	for i := len(dirs) - 1; i >= 0; i-- {
		if t, ok := s.typeDirs[strings.ToLower(dirs[i])]; ok {
			return t
		}
	}
	return ""
}
