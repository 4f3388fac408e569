package engine

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Producer pushes chunks into emit until the generation is done. emit
// returns an error once the consumer closed the stream.
type Producer func(ctx context.Context, emit func(Chunk) error) error

type channelStream struct {
	chunks chan Chunk
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

var errStreamClosed = errors.New("stream closed")

// NewChannelStream adapts a callback style provider API to a Stream. The
// producer runs in its own goroutine.
func NewChannelStream(ctx context.Context, producer Producer) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &channelStream{
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer close(s.chunks)
		err := producer(ctx, func(c Chunk) error {
			select {
			case s.chunks <- c:
				return nil
			case <-s.done:
				return errStreamClosed
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, errStreamClosed) {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()

	return s
}

func (s *channelStream) Recv() (Chunk, error) {
	c, ok := <-s.chunks
	if ok {
		return c, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Chunk{}, s.err
	}
	return Chunk{}, io.EOF
}

func (s *channelStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
	})
	return nil
}

// Collect drains stream and returns the concatenated text and reasoning.
// The stream is closed afterwards.
func Collect(stream Stream) (string, string, error) {
	defer func() {
		_ = stream.Close()
	}()

	var text, reasoning strings.Builder
	for {
		c, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return text.String(), reasoning.String(), nil
		}
		if err != nil {
			return text.String(), reasoning.String(), err
		}
		switch c.Kind {
		case ChunkReasoning:
			reasoning.WriteString(c.Delta)
		case ChunkText:
			text.WriteString(c.Delta)
		}
	}
}
