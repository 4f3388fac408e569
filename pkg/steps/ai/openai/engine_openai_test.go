package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	ai_types "github.com/go-go-golems/arbor/pkg/steps/ai/types"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettings(baseURL string) *settings.StepSettings {
	s := settings.NewStepSettings()
	s.API.SetAPIKey(ai_types.ApiTypeOpenRouter, "test-key")
	s.API.SetBaseURL(ai_types.ApiTypeOpenRouter, baseURL)
	return s
}

func TestMakeCompletionRequest(t *testing.T) {
	temp := 0.7
	req := &engine.Request{
		Model:        "qwen/qwen2.5-vl-32b-instruct:free",
		SystemPrompt: "Be brief.",
		Temperature:  &temp,
		Messages: []*conversation.Message{
			{Role: conversation.RoleUser, Parts: []conversation.Part{
				{Type: conversation.PartText, Text: "What is this?"},
				{Type: conversation.PartImage, URL: "https://files.example/cat.png"},
				{Type: conversation.PartFile, Name: "notes.pdf", URL: "https://files.example/notes.pdf"},
			}},
			{Role: conversation.RoleAssistant, Parts: []conversation.Part{
				{Type: conversation.PartReasoning, Text: "hmm"},
				{Type: conversation.PartText, Text: "A cat."},
			}},
			conversation.NewTextMessage(conversation.RoleAssistant, ""),
			conversation.NewTextMessage(conversation.RoleUser, "Sure?"),
		},
	}

	r := MakeCompletionRequest(req)
	assert.True(t, r.Stream)
	assert.InDelta(t, 0.7, r.Temperature, 1e-6)
	require.Len(t, r.Messages, 4)

	assert.Equal(t, go_openai.ChatMessageRoleSystem, r.Messages[0].Role)
	assert.Equal(t, "Be brief.", r.Messages[0].Content)

	user := r.Messages[1]
	require.Len(t, user.MultiContent, 2)
	assert.Equal(t, go_openai.ChatMessagePartTypeText, user.MultiContent[0].Type)
	assert.Contains(t, user.MultiContent[0].Text, "[notes.pdf](https://files.example/notes.pdf)")
	assert.Equal(t, "https://files.example/cat.png", user.MultiContent[1].ImageURL.URL)

	assert.Equal(t, go_openai.ChatCompletionMessage{Role: "assistant", Content: "A cat."}, r.Messages[2])
	assert.Equal(t, "Sure?", r.Messages[3].Content)
}

func TestMakeCompletionRequestKeepsZeroTemperature(t *testing.T) {
	temp := 0.0
	r := MakeCompletionRequest(&engine.Request{Model: "m", Temperature: &temp})
	assert.NotZero(t, r.Temperature)
	assert.InDelta(t, 0, r.Temperature, 1e-6)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"temperature"`)

	r = MakeCompletionRequest(&engine.Request{Model: "m"})
	assert.Zero(t, r.Temperature)
}

func TestStreamFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "", "lo"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	e, err := NewOpenAIEngine(newSettings(srv.URL), ai_types.ApiTypeOpenRouter)
	require.NoError(t, err)

	stream, err := e.Stream(context.Background(), &engine.Request{
		Model:    "deepseek/deepseek-chat:free",
		Messages: []*conversation.Message{conversation.NewTextMessage(conversation.RoleUser, "hi")},
	})
	require.NoError(t, err)

	text, reasoning, err := engine.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "", reasoning)
}

func TestStreamProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	e, err := NewOpenAIEngine(newSettings(srv.URL), ai_types.ApiTypeOpenRouter)
	require.NoError(t, err)

	_, err = e.Stream(context.Background(), &engine.Request{
		Model:    "deepseek/deepseek-chat:free",
		Messages: []*conversation.Message{conversation.NewTextMessage(conversation.RoleUser, "hi")},
	})
	var perr *engine.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusTooManyRequests, perr.StatusCode)
	assert.Equal(t, ai_types.ApiTypeOpenRouter, perr.Provider)
}

func TestMissingKey(t *testing.T) {
	e, err := NewOpenAIEngine(settings.NewStepSettings(), ai_types.ApiTypeOpenAI)
	require.NoError(t, err)
	_, err = e.Stream(context.Background(), &engine.Request{Model: "gpt-4o-mini"})
	require.Error(t, err)

	_, err = NewOpenAIEngine(settings.NewStepSettings(), ai_types.ApiTypeGemini)
	require.Error(t, err)
}
