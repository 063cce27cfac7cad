package types

import (
	"path"
	"strings"
	"time"
)

// Node is one addressable, optionally embedded unit of knowledge.
type Node struct {
	ID                string `json:"id"`
	Corpus            Corpus `json:"corpus"`
	NodeType          string `json:"node_type"`
	DataType          string `json:"data_type,omitempty"`
	DisplayName       string `json:"display_name"`
	OwningFile        string `json:"owning_file"`
	Content           string `json:"content,omitempty"`
	EmbeddingText     string `json:"embedding_text,omitempty"`
	EmbeddingTextHash string `json:"embedding_text_hash,omitempty"`

	// ChunkIndex is the vector index ordinal, -1 when the node is not in the index.
	ChunkIndex int `json:"chunk_index"`

	Embedding         []float32 `json:"-"`
	EmbeddingProvider string    `json:"embedding_provider,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// HasEmbedding reports whether the node carries a vector.
func (n *Node) HasEmbedding() bool {
	return len(n.Embedding) > 0
}

// FileStem returns a file name without directory or extension.
func FileStem(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// NodeID builds the default namespaced id for a file-backed node.
func NodeID(corpus Corpus, relativePath string) string {
	return string(corpus) + ":" + relativePath
}
