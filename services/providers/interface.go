package providers

import (
	"context"
	"time"
)

// Completer is the unified language-model interface the knowledge service
// depends on. Implementations must be safe for concurrent use.
type Completer interface {
	// Name returns the provider name (e.g. "openai")
	Name() string

	// Complete performs a single text completion request
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is currently reachable
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest represents a unified completion request
type CompletionRequest struct {
	// System is an optional system prompt
	System string `json:"system,omitempty"`

	// Prompt is the user-facing prompt text
	Prompt string `json:"prompt"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// Timeout bounds the request; zero falls back to the adapter default
	Timeout time.Duration `json:"-"`
}

// CompletionResponse represents a unified completion response
type CompletionResponse struct {
	// Text is the completion text
	Text string `json:"text"`

	// Model that produced the completion
	Model string `json:"model"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// PromptTokens / CompletionTokens are usage statistics
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`

	// Latency of the request
	Latency time.Duration `json:"latency"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Model identifier to request
	Model string

	// Timeout for requests
	Timeout time.Duration

	// MaxTokens bounds the completion length when the request does not set
	// its own limit
	MaxTokens int

	// Temperature applied when the request does not set its own
	Temperature float64

	// MaxRetries for failed requests
	MaxRetries int

	// RetryDelay between retries
	RetryDelay time.Duration
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		RetryDelay: time.Second,
	}
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if provErr, ok := err.(*ProviderError); ok {
		return provErr.Retryable
	}
	return false
}
