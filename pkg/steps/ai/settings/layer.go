package settings

import (
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/middlewares"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/pkg/errors"
)

const AiAPISlug = "ai-api"

// APIFlags are the provider credentials and endpoints, as parsed from the
// ai-api layer.
type APIFlags struct {
	GoogleAPIKey      string `glazed.parameter:"google-api-key"`
	OpenAIAPIKey      string `glazed.parameter:"openai-api-key"`
	OpenAIBaseURL     string `glazed.parameter:"openai-base-url"`
	OpenRouterAPIKey  string `glazed.parameter:"openrouter-api-key"`
	OpenRouterBaseURL string `glazed.parameter:"openrouter-base-url"`
}

func APIParameterDefinitions() []*parameters.ParameterDefinition {
	return []*parameters.ParameterDefinition{
		parameters.NewParameterDefinition(
			"google-api-key",
			parameters.ParameterTypeString,
			parameters.WithHelp("Google Gemini API key"),
		),
		parameters.NewParameterDefinition(
			"openai-api-key",
			parameters.ParameterTypeString,
			parameters.WithHelp("OpenAI API key"),
		),
		parameters.NewParameterDefinition(
			"openai-base-url",
			parameters.ParameterTypeString,
			parameters.WithHelp("OpenAI base URL"),
		),
		parameters.NewParameterDefinition(
			"openrouter-api-key",
			parameters.ParameterTypeString,
			parameters.WithHelp("OpenRouter API key"),
		),
		parameters.NewParameterDefinition(
			"openrouter-base-url",
			parameters.ParameterTypeString,
			parameters.WithHelp("OpenRouter base URL"),
		),
	}
}

type APIParameterLayer struct {
	*layers.ParameterLayerImpl `yaml:",inline"`
}

func NewAPIParameterLayer(options ...layers.ParameterLayerOptions) (*APIParameterLayer, error) {
	options_ := append([]layers.ParameterLayerOptions{
		layers.WithParameterDefinitions(APIParameterDefinitions()...),
	}, options...)
	ret, err := layers.NewParameterLayer(AiAPISlug, "AI provider credentials", options_...)
	if err != nil {
		return nil, err
	}

	return &APIParameterLayer{
		ParameterLayerImpl: ret,
	}, nil
}

// UpdateFromParsedLayers copies the parsed provider flags into s. Empty
// base URLs keep the provider defaults.
func (s *StepSettings) UpdateFromParsedLayers(parsedLayers *layers.ParsedLayers) error {
	f := &APIFlags{}
	if err := parsedLayers.InitializeStruct(AiAPISlug, f); err != nil {
		return errors.Wrap(err, "could not read provider settings")
	}

	s.API.SetAPIKey(types.ApiTypeGemini, f.GoogleAPIKey)
	s.API.SetAPIKey(types.ApiTypeOpenAI, f.OpenAIAPIKey)
	s.API.SetAPIKey(types.ApiTypeOpenRouter, f.OpenRouterAPIKey)
	s.API.SetBaseURL(types.ApiTypeOpenAI, f.OpenAIBaseURL)
	s.API.SetBaseURL(types.ApiTypeOpenRouter, f.OpenRouterBaseURL)
	return nil
}

// NewStepSettingsFromViper parses the ai-api layer from whatever viper holds:
// bound flags, the config file and ARBOR_ environment variables.
func NewStepSettingsFromViper() (*StepSettings, error) {
	apiLayer, err := NewAPIParameterLayer()
	if err != nil {
		return nil, err
	}

	layers_ := layers.NewParameterLayers(layers.WithLayers(apiLayer))
	parsedLayers := layers.NewParsedLayers()
	err = middlewares.ExecuteMiddlewares(layers_, parsedLayers,
		middlewares.GatherFlagsFromViper(parameters.WithParseStepSource("viper")),
		middlewares.SetFromDefaults(parameters.WithParseStepSource("defaults")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse provider settings")
	}

	ret := NewStepSettings()
	if err := ret.UpdateFromParsedLayers(parsedLayers); err != nil {
		return nil, err
	}
	return ret, nil
}
