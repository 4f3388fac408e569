// Package echo provides an offline engine that streams the last user message
// back. It backs the "echo" model and the generation tests.
package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
)

type EchoEngine struct {
	TimePerChunk time.Duration
	// FailAfter makes the stream fail with Err after that many text chunks.
	// Zero disables failing.
	FailAfter int
	Err       error
}

type Option func(*EchoEngine)

func WithTimePerChunk(d time.Duration) Option {
	return func(e *EchoEngine) {
		e.TimePerChunk = d
	}
}

func WithFailure(after int, err error) Option {
	return func(e *EchoEngine) {
		e.FailAfter = after
		e.Err = err
	}
}

func NewEchoEngine(options ...Option) *EchoEngine {
	ret := &EchoEngine{}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Chunks splits the reply to req into the deltas the engine emits.
func Chunks(req *engine.Request) []engine.Chunk {
	var ret []engine.Chunk
	if req.ThinkingMode {
		ret = append(ret, engine.ReasoningChunk(fmt.Sprintf("Echoing the last of %d messages.", len(req.Messages))))
	}

	text := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == conversation.RoleUser {
			text = req.Messages[i].Text()
			break
		}
	}
	if text == "" {
		text = "(nothing to echo)"
	}
	for _, w := range strings.SplitAfter(text, " ") {
		if w != "" {
			ret = append(ret, engine.TextChunk(w))
		}
	}
	return ret
}

func (e *EchoEngine) Stream(ctx context.Context, req *engine.Request) (engine.Stream, error) {
	chunks := Chunks(req)
	return engine.NewChannelStream(ctx, func(ctx context.Context, emit func(engine.Chunk) error) error {
		sent := 0
		for _, c := range chunks {
			if e.FailAfter > 0 && sent >= e.FailAfter {
				return e.Err
			}
			if e.TimePerChunk > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(e.TimePerChunk):
				}
			}
			if err := emit(c); err != nil {
				return err
			}
			if c.Kind == engine.ChunkText {
				sent++
			}
		}
		return nil
	}), nil
}

var _ engine.Engine = (*EchoEngine)(nil)
