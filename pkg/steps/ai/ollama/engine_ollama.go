package ollama

import (
	"context"
	"strings"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OllamaEngine streams generations from a local ollama server, located
// through OLLAMA_HOST.
type OllamaEngine struct {
	settings *settings.StepSettings
}

func NewOllamaEngine(s *settings.StepSettings) (*OllamaEngine, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("no API settings")
	}
	return &OllamaEngine{settings: s}, nil
}

// MakeChatRequest converts a request into an ollama chat request. Ollama
// expects inline image bytes, so media parts are referenced by link in the
// text instead.
func MakeChatRequest(req *engine.Request) *api.ChatRequest {
	var msgs []api.Message
	if strings.TrimSpace(req.SystemPrompt) != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		text := m.Text()
		for _, p := range m.Parts {
			if p.Type == conversation.PartImage || p.Type == conversation.PartFile {
				text += "\n" + p.URL
			}
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		msgs = append(msgs, api.Message{Role: string(m.Role), Content: text})
	}

	stream := true
	ret := &api.ChatRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]interface{}{},
	}
	if req.Temperature != nil {
		ret.Options["temperature"] = *req.Temperature
	}
	return ret
}

func (e *OllamaEngine) Stream(ctx context.Context, req *engine.Request) (engine.Stream, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	chatReq := MakeChatRequest(req)

	log.Debug().Str("model", chatReq.Model).Int("num_messages", len(chatReq.Messages)).Msg("Ollama stream started")

	return engine.NewChannelStream(ctx, func(ctx context.Context, emit func(engine.Chunk) error) error {
		err := client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Done {
				return nil
			}
			if resp.Message.Content == "" {
				return nil
			}
			return emit(engine.TextChunk(resp.Message.Content))
		})
		if err != nil {
			log.Error().Err(err).Msg("Ollama stream failed")
			return engine.NewProviderError(types.ApiTypeOllama, 0, err)
		}
		return nil
	}), nil
}

var _ engine.Engine = (*OllamaEngine)(nil)
