package factory

import (
	"strings"

	"github.com/go-go-golems/arbor/pkg/inference/engine"
	"github.com/go-go-golems/arbor/pkg/models"
	"github.com/go-go-golems/arbor/pkg/steps/ai/echo"
	"github.com/go-go-golems/arbor/pkg/steps/ai/gemini"
	"github.com/go-go-golems/arbor/pkg/steps/ai/ollama"
	"github.com/go-go-golems/arbor/pkg/steps/ai/openai"
	"github.com/go-go-golems/arbor/pkg/steps/ai/settings"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
)

// ErrMissingAPIKey is returned when the provider of a model needs a key that
// is not configured.
var ErrMissingAPIKey = errors.New("missing API key")

// EngineFactory creates inference engines for models of the registry.
// Callers do not need to know which provider serves a model.
type EngineFactory interface {
	// CreateEngine returns an engine able to serve model.
	CreateEngine(model models.Model) (engine.Engine, error)

	// SupportedProviders returns the provider names this factory supports.
	SupportedProviders() []string
}

// StandardEngineFactory builds engines from step settings. Provider
// selection is based on the model's provider.
type StandardEngineFactory struct {
	Settings *settings.StepSettings
	// Echo is used for the offline provider. A default echo engine is used
	// when nil.
	Echo engine.Engine
}

var _ EngineFactory = (*StandardEngineFactory)(nil)

func NewStandardEngineFactory(s *settings.StepSettings) *StandardEngineFactory {
	if s == nil {
		s = settings.NewStepSettings()
	}
	return &StandardEngineFactory{Settings: s}
}

func (f *StandardEngineFactory) CreateEngine(model models.Model) (engine.Engine, error) {
	provider := model.Provider
	if err := f.validateSettings(provider); err != nil {
		return nil, errors.Wrapf(err, "invalid settings for model %s", model.ID)
	}

	switch provider {
	case types.ApiTypeOpenAI, types.ApiTypeOpenRouter:
		return openai.NewOpenAIEngine(f.Settings, provider)

	case types.ApiTypeGemini:
		return gemini.NewGeminiEngine(f.Settings)

	case types.ApiTypeOllama:
		return ollama.NewOllamaEngine(f.Settings)

	case types.ApiTypeEcho:
		if f.Echo != nil {
			return f.Echo, nil
		}
		return echo.NewEchoEngine(), nil

	default:
		supported := strings.Join(f.SupportedProviders(), ", ")
		return nil, errors.Errorf("unsupported provider %s. Supported providers: %s", provider, supported)
	}
}

func (f *StandardEngineFactory) SupportedProviders() []string {
	return []string{
		string(types.ApiTypeOpenAI),
		string(types.ApiTypeOpenRouter),
		string(types.ApiTypeGemini),
		string(types.ApiTypeOllama),
		string(types.ApiTypeEcho),
	}
}

// validateSettings checks that hosted providers have a key.
func (f *StandardEngineFactory) validateSettings(provider types.ApiType) error {
	switch provider {
	case types.ApiTypeOpenAI, types.ApiTypeOpenRouter, types.ApiTypeGemini:
		if f.Settings == nil || f.Settings.API == nil {
			return errors.New("API settings cannot be nil")
		}
		if _, ok := f.Settings.API.APIKey(provider); !ok {
			return errors.Wrapf(ErrMissingAPIKey, "%s-api-key", provider)
		}
		if provider != types.ApiTypeGemini && f.Settings.API.BaseURL(provider) == "" {
			return errors.Errorf("missing base URL %s-base-url", provider)
		}
	}
	return nil
}
