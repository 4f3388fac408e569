package gemini

import (
	"context"
	"io"

	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	genai "github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiEngine streams generations from Google's Gemini API.
type GeminiEngine struct {
	settings *settings.StepSettings
}

func NewGeminiEngine(s *settings.StepSettings) (*GeminiEngine, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("no API settings")
	}
	return &GeminiEngine{settings: s}, nil
}

func (e *GeminiEngine) Stream(ctx context.Context, req *engine.Request) (engine.Stream, error) {
	apiKey, ok := e.settings.API.APIKey(types.ApiTypeGemini)
	if !ok {
		return nil, errors.Errorf("missing API key %s", string(types.ApiTypeGemini)+"-api-key")
	}

	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL := e.settings.API.BaseURL(types.ApiTypeGemini); baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}

	model := client.GenerativeModel(req.Model)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}

	history, parts := splitHistory(req.Messages)
	if len(parts) == 0 {
		_ = client.Close()
		return nil, errors.New("gemini: the last message must be a non-empty user message")
	}

	cs := model.StartChat()
	cs.History = history

	log.Debug().
		Str("model", req.Model).
		Int("history", len(history)).
		Msg("Gemini stream started")

	return &chatStream{
		client: client,
		iter:   cs.SendMessageStream(ctx, parts...),
	}, nil
}

type chatStream struct {
	client     *genai.Client
	iter       *genai.GenerateContentResponseIterator
	pending    []engine.Chunk
	chunkCount int
}

func (s *chatStream) Recv() (engine.Chunk, error) {
	for len(s.pending) == 0 {
		resp, err := s.iter.Next()
		if err == iterator.Done || errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", s.chunkCount).Msg("Gemini stream completed")
			return engine.Chunk{}, io.EOF
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", s.chunkCount).Msg("Gemini stream receive failed")
			return engine.Chunk{}, wrapError(err)
		}
		s.chunkCount++

		if resp == nil {
			continue
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if v, ok := p.(genai.Text); ok && v != "" {
					s.pending = append(s.pending, engine.TextChunk(string(v)))
				}
			}
		}
	}

	c := s.pending[0]
	s.pending = s.pending[1:]
	return c, nil
}

func (s *chatStream) Close() error {
	return s.client.Close()
}

func wrapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &engine.ProviderError{
			Provider:   types.ApiTypeGemini,
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Err:        err,
		}
	}
	return engine.NewProviderError(types.ApiTypeGemini, 0, err)
}

var _ engine.Engine = (*GeminiEngine)(nil)
