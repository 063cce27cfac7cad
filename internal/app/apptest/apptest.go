// Package apptest builds a small on-disk world for tests of the surfaces
// that run on an app.App.
package apptest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/internal/app"
	"github.com/dshills/lorekeeper/internal/config"
	"github.com/dshills/lorekeeper/pkg/types"
)

// Node ids written by Config.
var (
	TorchID     = types.NodeID(types.CorpusGamedata, "Item/Torch.json")
	WoodStickID = types.NodeID(types.CorpusGamedata, "Item/Wood_Stick.json")
	GuideID     = types.NodeID(types.CorpusDocs, "guide/crafting.md")
)

var files = map[types.Corpus]map[string]string{
	types.CorpusGamedata: {
		"Item/Torch.json":      `{"Name":"Torch","Recipe":{"Input":[{"ItemId":"Wood_Stick","Quantity":1}]}}`,
		"Item/Wood_Stick.json": `{"Name":"Wood Stick"}`,
	},
	types.CorpusDocs: {
		"guide/crafting.md": "# Crafting\n\nCraft a [[Torch]] from sticks.\n",
	},
}

// Config writes the gamedata and docs corpora under t.TempDir and returns
// a config with a local 64-dimension embedder.
func Config(t testing.TB) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "index.db")
	cfg.IndexDir = filepath.Join(dir, "vectors")
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 64
	cfg.Indexer.ScanWorkers = 2

	for corpus, tree := range files {
		root := filepath.Join(dir, string(corpus))
		for rel, body := range tree {
			p := filepath.Join(root, filepath.FromSlash(rel))
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		}
		cfg.Corpora[corpus] = &config.Source{Kind: config.KindFiles, Root: root}
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

// New opens an App on Config. The App is closed when the test ends.
func New(t testing.TB) *app.App {
	t.Helper()
	a, err := app.New(Config(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}
