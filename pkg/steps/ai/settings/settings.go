package settings

import (
	"net/http"
	"time"

	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/huandu/go-clone"
)

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// APISettings holds credentials and endpoints per provider. Keys follow the
// "<api-type>-api-key" and "<api-type>-base-url" naming used by the config
// file and the environment.
type APISettings struct {
	APIKeys  map[string]string `yaml:"api_keys,omitempty"`
	BaseUrls map[string]string `yaml:"base_urls,omitempty"`
}

func NewAPISettings() *APISettings {
	return &APISettings{
		APIKeys: map[string]string{},
		BaseUrls: map[string]string{
			string(types.ApiTypeOpenAI) + "-base-url":     DefaultOpenAIBaseURL,
			string(types.ApiTypeOpenRouter) + "-base-url": DefaultOpenRouterBaseURL,
		},
	}
}

func (s *APISettings) APIKey(apiType types.ApiType) (string, bool) {
	k, ok := s.APIKeys[string(apiType)+"-api-key"]
	return k, ok && k != ""
}

func (s *APISettings) SetAPIKey(apiType types.ApiType, key string) {
	s.APIKeys[string(apiType)+"-api-key"] = key
}

// BaseURL returns the configured endpoint, or "" to use the client default.
func (s *APISettings) BaseURL(apiType types.ApiType) string {
	return s.BaseUrls[string(apiType)+"-base-url"]
}

func (s *APISettings) SetBaseURL(apiType types.ApiType, url string) {
	if url == "" {
		return
	}
	s.BaseUrls[string(apiType)+"-base-url"] = url
}

func (s *APISettings) Clone() *APISettings {
	return clone.Clone(s).(*APISettings)
}

type ClientSettings struct {
	Timeout    *time.Duration `yaml:"timeout,omitempty"`
	HTTPClient *http.Client   `yaml:"-" json:"-"`
}

// StepSettings bundles what engines need to reach their provider.
type StepSettings struct {
	API    *APISettings    `yaml:"api,omitempty"`
	Client *ClientSettings `yaml:"client,omitempty"`
}

func NewStepSettings() *StepSettings {
	return &StepSettings{
		API:    NewAPISettings(),
		Client: &ClientSettings{},
	}
}

// GetHTTPClient returns the configured client, or a client honoring Timeout.
func (s *StepSettings) GetHTTPClient() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	if s.Client.HTTPClient != nil {
		return s.Client.HTTPClient
	}
	if s.Client.Timeout != nil {
		return &http.Client{Timeout: *s.Client.Timeout}
	}
	return http.DefaultClient
}

func (s *StepSettings) Clone() *StepSettings {
	ret := &StepSettings{}
	if s.API != nil {
		ret.API = s.API.Clone()
	}
	if s.Client != nil {
		c := *s.Client
		ret.Client = &c
	}
	return ret
}
