package types

// ResultSource records which retrieval path produced a result.
type ResultSource string

const (
	SourceSemantic   ResultSource = "semantic"
	SourceStructural ResultSource = "structural"
	SourceHybrid     ResultSource = "hybrid"
)

// RankedResult is a single search hit.
type RankedResult struct {
	NodeID      string `json:"node_id"`
	Corpus      Corpus `json:"corpus"`
	DisplayName string `json:"display_name"`
	NodeType    string `json:"node_type"`
	DataType    string `json:"data_type,omitempty"`
	OwningFile  string `json:"owning_file"`

	Rank  int     `json:"rank"` // 1-based
	Score float64 `json:"score"`

	Source  ResultSource `json:"source"`
	Path    []EdgeType   `json:"path,omitempty"` // edge hops for structural hits
	Snippet string       `json:"snippet,omitempty"`
}
