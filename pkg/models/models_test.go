package models

import (
	"testing"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDefaultMatchesConversationDefault(t *testing.T) {
	assert.Equal(t, conversation.DefaultModel, Default().ID)
	assert.Equal(t, conversation.DefaultGenerationConfig(), Builtin().DefaultGenerationConfig())
}

func TestBuiltinCapabilities(t *testing.T) {
	m, ok := Lookup("qwen/qwen2.5-vl-32b-instruct:free")
	require.True(t, ok)
	assert.Equal(t, types.ApiTypeOpenRouter, m.Provider)
	assert.Equal(t, "OpenRouter", m.Group)
	assert.True(t, m.Capabilities.Accepts(conversation.AttachmentImage))
	assert.False(t, m.Capabilities.Accepts(conversation.AttachmentDocument))

	m, ok = Lookup("deepseek/deepseek-r1:free")
	require.True(t, ok)
	assert.False(t, m.Capabilities.AcceptsAttachments())
	assert.True(t, m.Capabilities.SystemPrompt)

	_, ok = Lookup("gpt-2")
	assert.False(t, ok)
	_, err := Builtin().Resolve("gpt-2")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestGroupsKeepFileOrder(t *testing.T) {
	groups := Groups()
	require.NotEmpty(t, groups)
	assert.Equal(t, "Google", groups[0].Name)
	assert.Equal(t, "gemini-2.0-flash-lite", groups[0].Models[0].ID)

	// callers get copies
	groups[0].Models[0].ID = "changed"
	assert.Equal(t, "gemini-2.0-flash-lite", Groups()[0].Models[0].ID)
}

func TestRegistryValidation(t *testing.T) {
	_, err := NewRegistry(Group{Name: "x", Provider: "carrier-pigeon", Models: []Model{{ID: "a", Label: "A"}}})
	require.Error(t, err)

	_, err = NewRegistry(Group{Name: "x", Provider: types.ApiTypeOllama, Models: []Model{{ID: "a"}}})
	require.Error(t, err)

	_, err = NewRegistry(
		Group{Name: "x", Provider: types.ApiTypeOllama, Models: []Model{{ID: "a", Label: "A"}}},
		Group{Name: "y", Provider: types.ApiTypeOpenAI, Models: []Model{{ID: "a", Label: "A again"}}},
	)
	require.Error(t, err)

	_, err = NewRegistry()
	require.Error(t, err)
}

func TestWithExtraModels(t *testing.T) {
	groups, err := ParseGroups([]byte(`
- group: Local
  provider: ollama
  models:
    - id: qwen2.5:7b
      label: Qwen 2.5 7B
      capabilities: {system_prompt: true}
`))
	require.NoError(t, err)

	r, err := Builtin().With(groups...)
	require.NoError(t, err)
	m, ok := r.Lookup("qwen2.5:7b")
	require.True(t, ok)
	assert.Equal(t, types.ApiTypeOllama, m.Provider)
	assert.Equal(t, Default().ID, r.Default().ID)

	_, ok = Builtin().Lookup("qwen2.5:7b")
	assert.False(t, ok)

	_, err = Builtin().With(Group{Name: "dup", Provider: types.ApiTypeGemini, Models: []Model{{ID: "gemini-2.0-flash", Label: "again"}}})
	require.Error(t, err)
}
