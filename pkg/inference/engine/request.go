package engine

import (
	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/helpers"
	"github.com/go-go-golems/arbor/pkg/models"
)

// Request is everything a provider needs for one generation.
type Request struct {
	Model        string
	SystemPrompt string
	// Temperature is nil when the model does not accept one.
	Temperature  *float64
	ThinkingMode bool
	Messages     []*conversation.Message
}

// NewRequest builds a request for model from a node config, dropping the
// settings the model does not support.
func NewRequest(
	model models.Model,
	cfg conversation.GenerationConfig,
	messages []*conversation.Message,
) *Request {
	ret := &Request{
		Model:    model.ID,
		Messages: messages,
	}
	caps := model.Capabilities
	if caps.SystemPrompt {
		ret.SystemPrompt = cfg.SystemPrompt
	}
	if caps.Temperature {
		ret.Temperature = helpers.Float64Pointer(cfg.Temperature)
	}
	if caps.ThinkingMode {
		ret.ThinkingMode = cfg.ThinkingMode
	}
	return ret
}
