package openai

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

func MakeClient(s *settings.StepSettings, apiType ai_types.ApiType) (*go_openai.Client, error) {
	apiKey, ok := s.API.APIKey(apiType)
	if !ok {
		return nil, errors.Errorf("no API key for %s", apiType)
	}
	baseURL := s.API.BaseURL(apiType)
	if baseURL == "" {
		return nil, errors.Errorf("no base URL for %s", apiType)
	}
	config := go_openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = s.GetHTTPClient()
	client := go_openai.NewClientWithConfig(config)
	return client, nil
}

// MakeCompletionRequest converts a generation request into a streaming chat
// completion request. The system prompt becomes the leading system message.
func MakeCompletionRequest(req *engine.Request) go_openai.ChatCompletionRequest {
	var msgs []go_openai.ChatCompletionMessage
	if strings.TrimSpace(req.SystemPrompt) != "" {
		msgs = append(msgs, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		msg, ok := messageToOpenAIMessage(m)
		if !ok {
			log.Debug().Str("role", string(m.Role)).Msg("OpenAI request: skipping empty message")
			continue
		}
		msgs = append(msgs, msg)
	}

	ret := go_openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
		Stream:   true,
	}
	if req.Temperature != nil {
		ret.Temperature = float32(*req.Temperature)
		// go-openai omits a zero temperature, so the server default would apply
		if ret.Temperature == 0 {
			ret.Temperature = math.SmallestNonzeroFloat32
		}
	}
	return ret
}

func roleToOpenAIRole(r conversation.Role) string {
	switch r {
	case conversation.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case conversation.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	case conversation.RoleUser:
		return go_openai.ChatMessageRoleUser
	default:
		return go_openai.ChatMessageRoleUser
	}
}

// messageToOpenAIMessage drops reasoning parts, which chat completions do not
// accept as input. Images become image_url parts; other files are referenced
// by link in the text.
func messageToOpenAIMessage(m *conversation.Message) (go_openai.ChatCompletionMessage, bool) {
	text := strings.TrimSpace(m.Text())
	role := roleToOpenAIRole(m.Role)

	if !m.HasMedia() {
		if text == "" {
			return go_openai.ChatCompletionMessage{}, false
		}
		return go_openai.ChatCompletionMessage{Role: role, Content: text}, true
	}

	var links []string
	var images []go_openai.ChatMessagePart
	for _, p := range m.Parts {
		switch p.Type {
		case conversation.PartImage:
			images = append(images, go_openai.ChatMessagePart{
				Type: go_openai.ChatMessagePartTypeImageURL,
				ImageURL: &go_openai.ChatMessageImageURL{
					URL:    p.URL,
					Detail: go_openai.ImageURLDetailAuto,
				},
			})
		case conversation.PartFile:
			links = append(links, fmt.Sprintf("[%s](%s)", p.Name, p.URL))
		case conversation.PartText, conversation.PartReasoning:
		}
	}
	if len(links) > 0 {
		text = strings.TrimSpace(text + "\n\n" + strings.Join(links, "\n"))
	}

	parts := []go_openai.ChatMessagePart{{Type: go_openai.ChatMessagePartTypeText, Text: text}}
	parts = append(parts, images...)
	return go_openai.ChatCompletionMessage{Role: role, MultiContent: parts}, true
}

// wrapError turns go-openai errors into provider errors carrying the HTTP
// status when there is one.
func wrapError(apiType ai_types.ApiType, err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return &engine.ProviderError{
			Provider:   apiType,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return engine.NewProviderError(apiType, reqErr.HTTPStatusCode, err)
	}
	return engine.NewProviderError(apiType, 0, err)
}
