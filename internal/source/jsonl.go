package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dshills/lorekeeper/internal/hashtracker"
	"github.com/dshills/lorekeeper/pkg/types"
)

const maxJSONLLine = 16 << 20

// jsonlRecord is one line of an externally produced chunk export.
type jsonlRecord struct {
	ID            string         `json:"id"`
	RelativePath  string         `json:"relative_path"`
	ContentHash   string         `json:"content_hash"`
	Content       string         `json:"content"`
	EmbeddingText string         `json:"embedding_text"`
	DeclaredType  string         `json:"declared_type"`
	DisplayName   string         `json:"display_name"`
	Metadata      map[string]any `json:"metadata"`
}

// recordDigest is the canonical form hashed when an export line carries no
// content_hash. It covers every field edge extraction reads.
type recordDigest struct {
	Content       string         `msgpack:"content"`
	EmbeddingText string         `msgpack:"embedding_text"`
	DisplayName   string         `msgpack:"display_name"`
	DeclaredType  string         `msgpack:"declared_type"`
	Metadata      map[string]any `msgpack:"metadata"`
}

// JSONLSource reads chunks from JSON Lines exports, one chunk per line. It
// serves corpora extracted by an external tool, such as code parsed by a
// language-specific indexer. Root is a .jsonl file or a directory of them.
//
// Lines that cannot be decoded or validated are skipped and reported as
// rejections; they never fail the whole export.
type JSONLSource struct {
	corpus types.Corpus
	root   string
}

// NewJSONLSource creates a JSONL-backed source for corpus.
func NewJSONLSource(corpus types.Corpus, root string) *JSONLSource {
	return &JSONLSource{corpus: corpus, root: root}
}

func (s *JSONLSource) Corpus() types.Corpus {
	return s.corpus
}

func (s *JSONLSource) files() ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.root}, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.root, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// exportPath names an export file the way relative paths are named, so a
// line with no usable relative_path can still be attributed to a file.
func (s *JSONLSource) exportPath(file string) string {
	if rel, err := relSlash(s.root, file); err == nil && rel != "." {
		return rel
	}
	return filepath.Base(file)
}

// jsonlExport is one full read of the export, grouped by relative path.
type jsonlExport struct {
	chunks   map[string][]types.Chunk
	rejected map[string][]Rejection
}

func (s *JSONLSource) load(ctx context.Context) (*jsonlExport, error) {
	files, err := s.files()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.root, err)
	}

	exp := &jsonlExport{
		chunks:   make(map[string][]types.Chunk),
		rejected: make(map[string][]Rejection),
	}
	seen := make(map[string]string)
	for _, file := range files {
		if err := s.loadFile(ctx, file, exp, seen); err != nil {
			return nil, err
		}
	}
	for _, chunks := range exp.chunks {
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].ID < chunks[j].ID })
	}
	return exp, nil
}

func (s *JSONLSource) loadFile(ctx context.Context, file string, exp *jsonlExport, seen map[string]string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	name := s.exportPath(file)
	reject := func(path string, line int, raw string, err error) {
		if path == "" {
			path = name
		}
		exp.rejected[path] = append(exp.rejected[path], Rejection{
			Path:   path,
			Line:   line,
			Err:    fmt.Errorf("%s:%d: %w", name, line, err),
			digest: hashtracker.HashString(raw),
		})
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxJSONLLine)
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			reject("", line, raw, err)
			continue
		}
		c, err := rec.chunk()
		if err == nil {
			err = c.Validate()
		}
		if err != nil {
			reject(c.RelativePath, line, raw, err)
			continue
		}
		if prev, dup := seen[c.ID]; dup {
			reject(c.RelativePath, line, raw, fmt.Errorf("%w: duplicate id %s (first in %s)", types.ErrInvalidChunk, c.ID, prev))
			continue
		}
		seen[c.ID] = fmt.Sprintf("%s:%d", name, line)
		exp.chunks[c.RelativePath] = append(exp.chunks[c.RelativePath], c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return nil
}

func (r jsonlRecord) chunk() (types.Chunk, error) {
	c := types.Chunk{
		ID:            r.ID,
		RelativePath:  strings.TrimPrefix(filepath.ToSlash(r.RelativePath), "./"),
		ContentHash:   r.ContentHash,
		RawContent:    r.Content,
		EmbeddingText: r.EmbeddingText,
		DeclaredType:  r.DeclaredType,
		DisplayName:   r.DisplayName,
		Metadata:      r.Metadata,
	}
	if c.EmbeddingText == "" {
		c.EmbeddingText = truncate(strings.TrimSpace(c.DisplayName + "\n" + c.RawContent))
	}
	if c.ContentHash == "" {
		sum, err := digestChunk(&c)
		if err != nil {
			return c, fmt.Errorf("%w: %s: hash record: %v", types.ErrInvalidChunk, c.ID, err)
		}
		c.ContentHash = sum
	}
	return c, nil
}

// digestChunk hashes the msgpack encoding of c with map keys sorted at
// every level, so metadata key order in the export does not matter.
func digestChunk(c *types.Chunk) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(recordDigest{
		Content:       c.RawContent,
		EmbeddingText: c.EmbeddingText,
		DisplayName:   c.DisplayName,
		DeclaredType:  c.DeclaredType,
		Metadata:      c.Metadata,
	})
	if err != nil {
		return "", err
	}
	return hashtracker.HashBytes(buf.Bytes()), nil
}

// Hashes derives a per-file hash from the ids and hashes of the file's
// chunks, so adding, removing or editing any chunk changes it. Rejected
// lines count too: fixing one changes the hash of the file it belongs to.
func (s *JSONLSource) Hashes(ctx context.Context) (map[string]string, error) {
	exp, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(exp.chunks)+len(exp.rejected))
	for _, p := range exp.paths() {
		var b strings.Builder
		for _, c := range exp.chunks[p] {
			b.WriteString(c.ID)
			b.WriteByte(0)
			b.WriteString(c.ContentHash)
			b.WriteByte('\n')
		}
		for _, r := range exp.rejected[p] {
			b.WriteByte('!')
			b.WriteString(r.digest)
			b.WriteByte('\n')
		}
		hashes[p] = hashtracker.HashString(b.String())
	}
	return hashes, nil
}

func (exp *jsonlExport) paths() []string {
	set := make(map[string]bool, len(exp.chunks)+len(exp.rejected))
	for p := range exp.chunks {
		set[p] = true
	}
	for p := range exp.rejected {
		set[p] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *JSONLSource) Chunks(ctx context.Context, paths []string) ([]types.Chunk, error) {
	chunks, _, err := s.ReadChunks(ctx, paths)
	return chunks, err
}

// ReadChunks returns the chunks of paths along with the lines of those
// paths that were skipped.
func (s *JSONLSource) ReadChunks(ctx context.Context, paths []string) ([]types.Chunk, []Rejection, error) {
	exp, err := s.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	want := pathSet(paths)
	keys := make([]string, 0, len(want))
	for p := range want {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	var (
		out      []types.Chunk
		rejected []Rejection
	)
	for _, p := range keys {
		out = append(out, exp.chunks[p]...)
		rejected = append(rejected, exp.rejected[p]...)
	}
	return out, rejected, nil
}
