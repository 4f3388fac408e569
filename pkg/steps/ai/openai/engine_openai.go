package openai

import (
	"context"
	"io"

	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIEngine streams chat completions from any OpenAI compatible API. The
// api type selects which key and base URL of the settings are used, so the
// same engine serves OpenAI and OpenRouter.
type OpenAIEngine struct {
	settings *settings.StepSettings
	apiType  ai_types.ApiType
}

func NewOpenAIEngine(s *settings.StepSettings, apiType ai_types.ApiType) (*OpenAIEngine, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("no API settings")
	}
	if apiType != ai_types.ApiTypeOpenAI && apiType != ai_types.ApiTypeOpenRouter {
		return nil, errors.Errorf("api type %s is not OpenAI compatible", apiType)
	}
	return &OpenAIEngine{settings: s, apiType: apiType}, nil
}

func (e *OpenAIEngine) Stream(ctx context.Context, req *engine.Request) (engine.Stream, error) {
	client, err := MakeClient(e.settings, e.apiType)
	if err != nil {
		return nil, err
	}

	chatReq := MakeCompletionRequest(req)
	log.Debug().
		Str("api_type", string(e.apiType)).
		Str("model", chatReq.Model).
		Int("num_messages", len(chatReq.Messages)).
		Msg("OpenAI stream started")

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		return nil, wrapError(e.apiType, err)
	}

	return &chatStream{stream: stream, apiType: e.apiType}, nil
}

type chatStream struct {
	stream     *go_openai.ChatCompletionStream
	apiType    ai_types.ApiType
	chunkCount int
}

func (s *chatStream) Recv() (engine.Chunk, error) {
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", s.chunkCount).Msg("OpenAI stream completed")
			return engine.Chunk{}, io.EOF
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", s.chunkCount).Msg("OpenAI stream receive failed")
			return engine.Chunk{}, wrapError(s.apiType, err)
		}
		s.chunkCount++

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return engine.TextChunk(delta), nil
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}

var _ engine.Engine = (*OpenAIEngine)(nil)
