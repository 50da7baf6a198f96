// Package providers contains LLM client adapters for the agent runtime.
// Each adapter translates the provider-agnostic chat contract into the
// backend's native request shape, maps native finish reasons onto the core's
// four categories, and preserves tool-call ids across the boundary.
package providers

import (
	"fmt"
	"time"

	"github.com/haasonsaas/hive/internal/agent"
	"github.com/haasonsaas/hive/pkg/models"
)

// Config selects and configures a provider adapter.
type Config struct {
	// Type is the provider tag: "anthropic", "openai", or "ollama".
	Type string

	APIKey  string
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// MaxRetries bounds transport-level retries for transient failures.
	MaxRetries int

	// RetryDelay is the base delay for exponential retry backoff.
	RetryDelay time.Duration
}

// New constructs the adapter named by cfg.Type. Unknown types fail with
// UNSUPPORTED_PROVIDER at construction time.
func New(cfg Config) (agent.LLMClient, error) {
	switch cfg.Type {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay,
		})
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		}), nil
	default:
		return nil, agent.Errorf(models.ErrCodeUnsupportedProvider, "unsupported provider %q", cfg.Type)
	}
}

// ProviderError wraps a backend failure with the provider and model that
// produced it, so LLM_ERROR diagnostics carry their context.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%s): status %d: %v", e.Provider, e.Model, e.Status, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Model, e.Cause)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider, model string, cause error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Cause: cause}
}

// WithStatus attaches an HTTP status code.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	return e
}
