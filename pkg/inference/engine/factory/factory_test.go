package factory

import (
	"testing"

	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/go-go-golems/arbor/pkg/steps/ai/echo"
	"github.com/go-go-golems/arbor/pkg/steps/ai/gemini"
	"github.com/go-go-golems/arbor/pkg/steps/ai/ollama"
	"github.com/go-go-golems/arbor/pkg/steps/ai/openai"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model(provider types.ApiType) models.Model {
	return models.Model{ID: "m", Label: "M", Provider: provider}
}

func TestCreateEngineByProvider(t *testing.T) {
	s := settings.NewStepSettings()
	s.API.SetAPIKey(types.ApiTypeOpenAI, "sk-openai")
	s.API.SetAPIKey(types.ApiTypeOpenRouter, "sk-or")
	s.API.SetAPIKey(types.ApiTypeGemini, "g-key")
	f := NewStandardEngineFactory(s)

	e, err := f.CreateEngine(model(types.ApiTypeOpenAI))
	require.NoError(t, err)
	assert.IsType(t, &openai.OpenAIEngine{}, e)

	e, err = f.CreateEngine(model(types.ApiTypeOpenRouter))
	require.NoError(t, err)
	assert.IsType(t, &openai.OpenAIEngine{}, e)

	e, err = f.CreateEngine(model(types.ApiTypeGemini))
	require.NoError(t, err)
	assert.IsType(t, &gemini.GeminiEngine{}, e)

	e, err = f.CreateEngine(model(types.ApiTypeOllama))
	require.NoError(t, err)
	assert.IsType(t, &ollama.OllamaEngine{}, e)

	e, err = f.CreateEngine(model(types.ApiTypeEcho))
	require.NoError(t, err)
	assert.IsType(t, &echo.EchoEngine{}, e)
}

func TestMissingAPIKey(t *testing.T) {
	f := NewStandardEngineFactory(nil)

	_, err := f.CreateEngine(model(types.ApiTypeGemini))
	require.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Contains(t, err.Error(), "gemini-api-key")

	_, err = f.CreateEngine(model(types.ApiTypeOpenRouter))
	require.ErrorIs(t, err, ErrMissingAPIKey)

	// local providers need no key
	_, err = f.CreateEngine(model(types.ApiTypeOllama))
	require.NoError(t, err)
}

func TestUnsupportedProvider(t *testing.T) {
	f := NewStandardEngineFactory(nil)
	_, err := f.CreateEngine(model(types.ApiType("claude")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported provider claude")
}

func TestEchoOverride(t *testing.T) {
	custom := echo.NewEchoEngine()
	f := NewStandardEngineFactory(nil)
	f.Echo = custom

	e, err := f.CreateEngine(model(types.ApiTypeEcho))
	require.NoError(t, err)
	assert.Same(t, custom, e)
}
