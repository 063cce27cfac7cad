package types

import "fmt"

// Chunk is one unit of content produced by a chunk source. It is the input to
// node creation and embedding.
type Chunk struct {
	ID            string
	RelativePath  string
	ContentHash   string
	RawContent    string
	EmbeddingText string
	DeclaredType  string
	DisplayName   string
	Metadata      map[string]any
}

// Validate checks the fields every chunk source must fill in.
func (c *Chunk) Validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidChunk)
	case c.RelativePath == "":
		return fmt.Errorf("%w: %s: missing relative path", ErrInvalidChunk, c.ID)
	case c.ContentHash == "":
		return fmt.Errorf("%w: %s: missing content hash", ErrInvalidChunk, c.ID)
	}
	return nil
}
