package engine

import (
	"context"
	"io"
	"testing"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestFiltersByCapabilities(t *testing.T) {
	cfg := conversation.GenerationConfig{
		Model:        "m",
		SystemPrompt: "be brief",
		Temperature:  0.3,
		ThinkingMode: true,
	}
	msgs := []*conversation.Message{conversation.NewTextMessage(conversation.RoleUser, "hi")}

	full := models.Model{ID: "m", Capabilities: models.Capabilities{
		SystemPrompt: true, Temperature: true, ThinkingMode: true,
	}}
	req := NewRequest(full, cfg, msgs)
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, "be brief", req.SystemPrompt)
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.3, *req.Temperature)
	assert.True(t, req.ThinkingMode)
	assert.Len(t, req.Messages, 1)

	bare := models.Model{ID: "m"}
	req = NewRequest(bare, cfg, msgs)
	assert.Empty(t, req.SystemPrompt)
	assert.Nil(t, req.Temperature)
	assert.False(t, req.ThinkingMode)
}

func TestChannelStreamDeliversInOrder(t *testing.T) {
	s := NewChannelStream(context.Background(), func(ctx context.Context, emit func(Chunk) error) error {
		for _, c := range []Chunk{ReasoningChunk("think"), TextChunk("a"), TextChunk("b")} {
			if err := emit(c); err != nil {
				return err
			}
		}
		return nil
	})

	c, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, ReasoningChunk("think"), c)

	text, reasoning, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
	assert.Empty(t, reasoning)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannelStreamProducerError(t *testing.T) {
	perr := NewProviderError(types.ApiTypeOpenRouter, 429, errors.New("rate limited"))
	s := NewChannelStream(context.Background(), func(ctx context.Context, emit func(Chunk) error) error {
		if err := emit(TextChunk("partial")); err != nil {
			return err
		}
		return perr
	})

	text, _, err := Collect(s)
	assert.Equal(t, "partial", text)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 429, pe.StatusCode)
	assert.Equal(t, "openrouter: rate limited (status 429)", pe.Error())
}

func TestCloseUnblocksProducer(t *testing.T) {
	finished := make(chan error, 1)
	s := NewChannelStream(context.Background(), func(ctx context.Context, emit func(Chunk) error) error {
		for {
			if err := emit(TextChunk("x")); err != nil {
				finished <- err
				return err
			}
		}
	})

	_, err := s.Recv()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	err = <-finished
	assert.Error(t, err)
}

func TestProviderErrorWithoutStatus(t *testing.T) {
	inner := errors.New("connection reset")
	pe := NewProviderError(types.ApiTypeGemini, 0, inner)
	assert.Equal(t, "gemini: connection reset", pe.Error())
	assert.ErrorIs(t, pe, inner)
}
