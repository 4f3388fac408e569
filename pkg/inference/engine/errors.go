package engine

import (
	"fmt"

	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
)

// ProviderError is returned when a provider rejects a request or fails
// mid-stream.
type ProviderError struct {
	Provider types.ApiType
	// StatusCode is the HTTP status when the provider reported one, 0 otherwise.
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider types.ApiType, statusCode int, err error) *ProviderError {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &ProviderError{Provider: provider, StatusCode: statusCode, Message: msg, Err: err}
}
