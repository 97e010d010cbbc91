// Package llm wraps the LLM collaborator behind a single structured-output
// capability. Every consumer has a deterministic fallback; a disabled or
// failing provider never aborts a turn.
package llm

import (
	"context"
	"encoding/json"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// GenerateStructured produces a JSON document conforming to the
	// request's output schema
	GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// StructuredRequest contains the input for a structured-output call
type StructuredRequest struct {
	// Prompt is the user-role prompt text
	Prompt string

	// SystemPrompt sets the assistant's role and rules
	SystemPrompt string

	// OutputSchema is the JSON schema the response must conform to
	OutputSchema json.RawMessage

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// StructuredResponse contains the provider's raw JSON output
type StructuredResponse struct {
	// Raw is the JSON document returned by the model
	Raw json.RawMessage

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// RequestsPerMinute caps outbound call rate (0 = unlimited)
	RequestsPerMinute int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "", // Disabled by default
		Model:             "",
		Timeout:           30,
		MaxTokens:         1000,
		RequestsPerMinute: 30,
	}
}

// ConfigFromMetadata converts metadata.LLMConfig to llm.Config
func ConfigFromMetadata(c metadata.LLMConfig) Config {
	return Config{
		Provider:          c.Provider,
		Model:             c.Model,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxTokens:         c.MaxTokens,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// schemaInstruction is appended to system prompts so providers without a
// native schema parameter still return conforming JSON.
func schemaInstruction(schema json.RawMessage) string {
	return "Respond with a single JSON object and nothing else. The object must conform to this JSON schema:\n" + string(schema)
}
