package ollama

import (
	"testing"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeChatRequest(t *testing.T) {
	temp := 0.3
	req := MakeChatRequest(&engine.Request{
		Model:        "llava",
		SystemPrompt: "You describe images.",
		Temperature:  &temp,
		Messages: []*conversation.Message{
			{Role: conversation.RoleUser, Parts: []conversation.Part{
				{Type: conversation.PartText, Text: "What is this?"},
				{Type: conversation.PartImage, URL: "https://files.example/cat.png"},
			}},
			conversation.NewTextMessage(conversation.RoleAssistant, ""),
			conversation.NewTextMessage(conversation.RoleUser, "And now?"),
		},
	})

	assert.Equal(t, "llava", req.Model)
	require.NotNil(t, req.Stream)
	assert.True(t, *req.Stream)
	assert.Equal(t, 0.3, req.Options["temperature"])

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "What is this?\nhttps://files.example/cat.png", req.Messages[1].Content)
	assert.Equal(t, "user", req.Messages[2].Role)
}

func TestMakeChatRequestWithoutTemperature(t *testing.T) {
	req := MakeChatRequest(&engine.Request{Model: "llama3.2"})
	assert.Empty(t, req.Messages)
	_, ok := req.Options["temperature"]
	assert.False(t, ok)
}
