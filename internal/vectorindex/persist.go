package vectorindex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

const (
	indexExt      = ".hnsw"
	descriptorExt = ".hnsw.meta.yaml"
)

// IndexPath returns the snapshot path for a corpus under dir.
func IndexPath(dir, corpus string) string {
	return filepath.Join(dir, corpus+indexExt)
}

// DescriptorPath returns the descriptor sidecar path for a corpus under dir.
func DescriptorPath(dir, corpus string) string {
	return filepath.Join(dir, corpus+descriptorExt)
}

type snapshot struct {
	FormatVersion string       `msgpack:"format_version"`
	Config        Config       `msgpack:"config"`
	Dimension     int          `msgpack:"dimension"`
	IDs           []string     `msgpack:"ids"`
	Vectors       [][]float32  `msgpack:"vectors"`
	Levels        []int        `msgpack:"levels"`
	Links         [][][]uint32 `msgpack:"links"`
	Entry         uint32       `msgpack:"entry"`
	MaxLevel      int          `msgpack:"max_level"`
}

// Save writes the snapshot and then its descriptor. Each file is written to
// a temp file and renamed into place, so a reader sees either the old or the
// new file. A crash between the two renames leaves a descriptor that no
// longer matches the snapshot count, which Load treats as a rebuild.
func (ix *Index) Save(dir, corpus string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	g := ix.graph
	snap := snapshot{
		FormatVersion: FormatVersion,
		Config:        g.cfg,
		Dimension:     g.dim,
		IDs:           ix.ids,
		Vectors:       g.vectors,
		Levels:        g.levels,
		Links:         g.links,
		Entry:         g.entry,
		MaxLevel:      g.maxLevel,
	}
	if err := writeAtomic(IndexPath(dir, corpus), func(w io.Writer) error {
		return msgpack.NewEncoder(w).Encode(&snap)
	}); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	if err := writeAtomic(DescriptorPath(dir, corpus), func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(ix.desc); err != nil {
			return err
		}
		return enc.Close()
	}); err != nil {
		return fmt.Errorf("write descriptor: %w", err)
	}
	return nil
}

// ReadDescriptor loads the descriptor sidecar for a corpus.
func ReadDescriptor(dir, corpus string) (Descriptor, error) {
	var desc Descriptor
	data, err := os.ReadFile(DescriptorPath(dir, corpus))
	if err != nil {
		return desc, err
	}
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return desc, fmt.Errorf("parse descriptor: %w", err)
	}
	return desc, nil
}

// Load opens a persisted index and checks it against want. A missing,
// unreadable or incompatible index yields ErrRebuildRequired.
func Load(dir, corpus string, want Descriptor) (*Index, error) {
	desc, err := ReadDescriptor(dir, corpus)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no descriptor for %s", ErrRebuildRequired, corpus)
		}
		return nil, fmt.Errorf("%w: %v", ErrRebuildRequired, err)
	}
	if err := desc.Compatible(want); err != nil {
		return nil, err
	}

	f, err := os.Open(IndexPath(dir, corpus))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRebuildRequired, err)
	}
	defer f.Close()

	var snap snapshot
	if err := msgpack.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrRebuildRequired, corpus, err)
	}
	if snap.FormatVersion != FormatVersion || snap.Dimension != desc.Dimension ||
		len(snap.Vectors) != desc.Count || len(snap.Links) != len(snap.Vectors) || len(snap.Levels) != len(snap.Vectors) ||
		len(snap.IDs) != len(snap.Vectors) {
		return nil, fmt.Errorf("%w: snapshot for %s does not match its descriptor", ErrRebuildRequired, corpus)
	}

	g := &graph{
		cfg:      snap.Config.withDefaults(),
		dim:      snap.Dimension,
		vectors:  snap.Vectors,
		levels:   snap.Levels,
		links:    snap.Links,
		entry:    snap.Entry,
		maxLevel: snap.MaxLevel,
	}
	return &Index{desc: desc, ids: snap.IDs, graph: g}, nil
}

// Remove deletes the snapshot and descriptor of a corpus. Missing files are
// not an error.
func Remove(dir, corpus string) error {
	for _, p := range []string{DescriptorPath(dir, corpus), IndexPath(dir, corpus)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := write(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
