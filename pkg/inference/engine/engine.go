package engine

import (
	"context"
)

// Engine opens a streamed generation for a request. Implementations wrap one
// provider API each.
type Engine interface {
	// Stream starts the generation. The returned stream must be closed by the
	// caller. Cancelling ctx aborts the underlying request.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream is a lazy sequence of chunks. Recv returns io.EOF once the provider
// finished; any other error ends the stream.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

type ChunkKind string

const (
	ChunkText      ChunkKind = "text"
	ChunkReasoning ChunkKind = "reasoning"
)

type Chunk struct {
	Kind  ChunkKind `json:"kind"`
	Delta string    `json:"delta"`
}

func TextChunk(delta string) Chunk {
	return Chunk{Kind: ChunkText, Delta: delta}
}

func ReasoningChunk(delta string) Chunk {
	return Chunk{Kind: ChunkReasoning, Delta: delta}
}
