package llm

import (
	"context"
	"fmt"
	"time"

	"tagger-backend/internal/config"
)

const invokeTimeout = 50 * time.Second

// Client sends a fully rendered prompt to a model and returns the raw reply.
// Implementations do not retry and do not interpret the reply.
type Client interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvocationError is returned when a model call fails. StatusCode is 0 when
// the failure happened before an HTTP status was received.
type InvocationError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *InvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s model '%s' invocation failed with status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s model '%s' invocation failed: %v", e.Provider, e.Model, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func NewClient(cfg config.LanguageConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case config.ProviderCompat:
		return NewCompatClient(cfg)
	case config.ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model provider '%s'", cfg.Provider)
	}
}
