package types

// ApiType names the wire protocol used to reach a model.
type ApiType string

const (
	ApiTypeOpenAI     ApiType = "openai"
	ApiTypeOpenRouter ApiType = "openrouter"
	ApiTypeGemini     ApiType = "gemini"
	ApiTypeOllama     ApiType = "ollama"
	// ApiTypeEcho answers locally without a provider, for tests and offline use.
	ApiTypeEcho ApiType = "echo"
)

func (a ApiType) IsValid() bool {
	switch a {
	case ApiTypeOpenAI, ApiTypeOpenRouter, ApiTypeGemini, ApiTypeOllama, ApiTypeEcho:
		return true
	default:
		return false
	}
}
