package storage

import (
	"context"
	"time"

	"github.com/dshills/lorekeeper/pkg/types"
)

// Graph defines the persistence operations for nodes, edges and the
// bookkeeping tables that drive incremental indexing. Both Storage and Tx
// implement it.
type Graph interface {
	// Node operations
	UpsertNodes(ctx context.Context, nodes []*types.Node) error
	GetNode(ctx context.Context, id string) (*types.Node, error)
	GetNodes(ctx context.Context, ids []string) (map[string]*types.Node, error)
	NodesExist(ctx context.Context, ids []string) (map[string]bool, error)
	DeleteNodesByOwningFile(ctx context.Context, corpus types.Corpus, paths []string) ([]string, error)
	ListNodesByOwningFiles(ctx context.Context, corpus types.Corpus, paths []string) ([]*types.Node, error)
	ListNodesByCorpus(ctx context.Context, corpus types.Corpus) ([]*types.Node, error)
	ListNameEntries(ctx context.Context, corpus types.Corpus) ([]NameEntry, error)
	FindNodesByDisplayName(ctx context.Context, corpus types.Corpus, name string) ([]*types.Node, error)

	// Embedding and vector index mapping
	ListEmbeddedNodes(ctx context.Context, corpus types.Corpus) ([]EmbeddedNode, error)
	AssignChunkIndexes(ctx context.Context, corpus types.Corpus, ids []string) error

	// Edge operations
	UpsertEdges(ctx context.Context, edges []types.Edge) error
	ScopedDelete(ctx context.Context, owners OwnerFilter, allow []types.EdgeType) (int64, error)
	MarkTargetsUnresolved(ctx context.Context, targetIDs []string) (int64, error)
	EdgesFrom(ctx context.Context, sourceID string, edgeTypes ...types.EdgeType) ([]types.Edge, error)
	EdgesTo(ctx context.Context, targetID string, edgeTypes ...types.EdgeType) ([]types.Edge, error)
	ListDanglingEdges(ctx context.Context, afterRowID int64, limit int) ([]DanglingEdge, error)
	ReplaceEdge(ctx context.Context, old types.Edge, replacements []types.Edge) error
	MarkEdgeResolved(ctx context.Context, edge types.Edge) error

	// File hash operations
	GetFileHashes(ctx context.Context, corpus types.Corpus) (map[string]string, error)
	ListFileHashes(ctx context.Context, corpus types.Corpus) ([]FileHash, error)
	UpdateHashes(ctx context.Context, corpus types.Corpus, hashes []FileHash) error
	RemoveHashes(ctx context.Context, corpus types.Corpus, paths []string) error

	// Error log operations
	LogIndexErrors(ctx context.Context, errs []IndexError) error
	ClearIndexErrors(ctx context.Context, corpus types.Corpus, files []string) error
	ListIndexErrors(ctx context.Context, corpus types.Corpus, limit int) ([]IndexError, error)

	// Corpus version and run history
	GetCorpusState(ctx context.Context, corpus types.Corpus) (*CorpusState, error)
	SetCorpusState(ctx context.Context, state CorpusState) error
	WipeCorpus(ctx context.Context, corpus types.Corpus, owned []types.EdgeType) error
	CreateIndexRun(ctx context.Context, run *IndexRun) error
	FinishIndexRun(ctx context.Context, run *IndexRun) error
	LastIndexRun(ctx context.Context, corpus types.Corpus) (*IndexRun, error)

	// Status operations
	GetCorpusStats(ctx context.Context, corpus types.Corpus) (*CorpusStats, error)
}

// Storage is a Graph backed by a database connection.
type Storage interface {
	Graph

	BeginTx(ctx context.Context) (Tx, error)
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx represents a database transaction
type Tx interface {
	Graph

	Commit() error
	Rollback() error
}

// OwnerFilter scopes an edge delete to a set of owning files. AnyOwner
// matches every owning file and is used when a corpus is wiped.
type OwnerFilter struct {
	Files    []string
	AnyOwner bool
}

// NameEntry is the minimal projection used to build identifier lookups.
type NameEntry struct {
	ID          string
	DisplayName string
	NodeType    string
	DataType    string
}

// EmbeddedNode is a node id with its stored vector.
type EmbeddedNode struct {
	ID       string
	Vector   []float32
	Provider string
}

// DanglingEdge is an unresolved edge together with its row id, which is used
// to page through the healing sweep.
type DanglingEdge struct {
	RowID int64
	Edge  types.Edge
}

// FileStatus records the outcome of the last parse of a file.
type FileStatus string

const (
	FileIndexed FileStatus = "indexed"
	FileError   FileStatus = "error"
)

// FileHash is a row in file_hashes.
type FileHash struct {
	Corpus      types.Corpus
	Path        string
	Hash        string
	Status      FileStatus
	LastIndexed time.Time
}

// IndexError is a row in index_errors.
type IndexError struct {
	ID        int64
	Corpus    types.Corpus
	File      string
	Type      string
	Message   string
	CreatedAt time.Time
}

// CorpusState records the extractor and text builder versions a corpus was
// last indexed with.
type CorpusState struct {
	Corpus             types.Corpus
	TaxonomyVersion    string
	TextBuilderVersion string
	UpdatedAt          time.Time
}

// RunStatus is the terminal state of an indexing run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunNoop      RunStatus = "noop"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IndexRun is a row in index_runs.
type IndexRun struct {
	ID         string
	Corpus     types.Corpus
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time

	FilesAdded    int
	FilesChanged  int
	FilesDeleted  int
	NodesWritten  int
	NodesEmbedded int
	EdgesWritten  int
	ParseErrors   int
	ErrorMessage  string
}

// CorpusStats contains row counts for one corpus.
type CorpusStats struct {
	Corpus        types.Corpus
	Nodes         int
	EmbeddedNodes int
	Edges         int
	DanglingEdges int
	TrackedFiles  int
	IndexErrors   int
}
