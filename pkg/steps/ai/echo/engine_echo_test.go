package echo

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(thinking bool) *engine.Request {
	return &engine.Request{
		Model:        "echo",
		ThinkingMode: thinking,
		Messages: []*conversation.Message{
			conversation.NewTextMessage(conversation.RoleUser, "first"),
			conversation.NewTextMessage(conversation.RoleAssistant, "reply"),
			conversation.NewTextMessage(conversation.RoleUser, "say it back"),
		},
	}
}

func TestEchoStreamsLastUserMessage(t *testing.T) {
	stream, err := NewEchoEngine().Stream(context.Background(), request(true))
	require.NoError(t, err)

	text, reasoning, err := engine.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "say it back", text)
	assert.Equal(t, "Echoing the last of 3 messages.", reasoning)
}

func TestEchoChunksInOrder(t *testing.T) {
	chunks := Chunks(request(false))
	assert.Equal(t, []engine.Chunk{
		engine.TextChunk("say "),
		engine.TextChunk("it "),
		engine.TextChunk("back"),
	}, chunks)
}

func TestEchoFailure(t *testing.T) {
	boom := errors.New("boom")
	stream, err := NewEchoEngine(WithFailure(1, boom)).Stream(context.Background(), request(false))
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	c, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "say ", c.Delta)

	_, err = stream.Recv()
	require.ErrorIs(t, err, boom)
}

func TestEchoCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewEchoEngine(WithTimePerChunk(time.Hour)).Stream(ctx, request(false))
	require.NoError(t, err)

	cancel()
	_, err = stream.Recv()
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseStopsProducer(t *testing.T) {
	stream, err := NewEchoEngine().Stream(context.Background(), request(false))
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	// after Close the stream drains to EOF instead of blocking
	for i := 0; i < 10; i++ {
		_, err = stream.Recv()
		if err != nil {
			break
		}
	}
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, context.Canceled))
}
