package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI models
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	// Simple check: try to list models (lightweight API call)
	_, err := p.client.ListModels(ctx)
	if err != nil {
		// Log the actual error for debugging (this helps users diagnose API key issues)
		fmt.Fprintf(os.Stderr, "OpenAI API check failed: %v\n", err)
		return false
	}
	return true
}

// GenerateStructured produces a schema-conforming JSON document using the
// Chat Completions API in JSON mode.
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 1000
	}

	timeout := time.Duration(p.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system := req.SystemPrompt
	if system != "" {
		system += "\n\n"
	}
	system += schemaInstruction(req.OutputSchema)

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.1, // Low temperature for deterministic extraction
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	raw := stripJSONFences(resp.Choices[0].Message.Content)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("OpenAI returned invalid JSON")
	}

	return &StructuredResponse{
		Raw:        json.RawMessage(raw),
		Model:      model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// stripJSONFences removes a markdown code fence around a JSON document, a
// habit some models keep even in JSON mode.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
