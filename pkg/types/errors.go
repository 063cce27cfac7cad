package types

import "errors"

var (
	ErrUnknownCorpus   = errors.New("unknown corpus")
	ErrUnknownEdgeType = errors.New("unknown edge type")
	ErrInvalidChunk    = errors.New("invalid chunk")
)
