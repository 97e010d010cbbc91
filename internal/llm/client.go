package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FallbackReason explains why a structured-output call produced no usable
// value. The fallback decision is made here, once, so callers branch on the
// Outcome instead of wrapping every call site in error handling.
type FallbackReason string

const (
	// FallbackNone means the call succeeded.
	FallbackNone FallbackReason = ""

	// FallbackDisabled means no provider is configured.
	FallbackDisabled FallbackReason = "llm_disabled"

	// FallbackCallFailed means the provider call errored or was cancelled.
	FallbackCallFailed FallbackReason = "llm_call_failed"

	// FallbackBadOutput means the provider returned JSON that does not
	// conform to the requested schema.
	FallbackBadOutput FallbackReason = "llm_bad_output"
)

// Outcome is the result of a structured-output call: either a raw JSON value
// or a fallback reason. Never both.
type Outcome struct {
	Raw    json.RawMessage
	Reason FallbackReason
	Err    error // underlying cause when Reason is set
}

// OK reports whether the call produced a usable value.
func (o Outcome) OK() bool {
	return o.Reason == FallbackNone
}

// Decode unmarshals the outcome's value into v. Calling Decode on a fallback
// outcome is a caller bug.
func (o Outcome) Decode(v interface{}) error {
	if !o.OK() {
		return fmt.Errorf("decode called on fallback outcome (%s)", o.Reason)
	}
	return json.Unmarshal(o.Raw, v)
}

// Client wraps a Provider with rate limiting, output-schema validation, and
// centralized fallback decisions.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	config   Config
	log      *zap.SugaredLogger
}

// NewClient builds a client from configuration. An empty provider name
// yields a disabled client, not an error.
func NewClient(config Config, log *zap.Logger) (*Client, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		provider: provider,
		limiter:  limiter,
		config:   config,
		log:      log.Sugar().With("component", "llm"),
	}, nil
}

// NewClientWithProvider builds a client around an existing provider, used by
// tests and by callers that construct providers directly.
func NewClientWithProvider(provider Provider, config Config, log *zap.Logger) *Client {
	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RequestsPerMinute)/60.0), 1)
	}
	return &Client{
		provider: provider,
		limiter:  limiter,
		config:   config,
		log:      log.Sugar().With("component", "llm"),
	}
}

// Enabled reports whether a provider is configured.
func (c *Client) Enabled() bool {
	return c.provider != nil
}

// ProviderName returns the configured provider's name, or "" when disabled.
func (c *Client) ProviderName() string {
	if c.provider == nil {
		return ""
	}
	return c.provider.Name()
}

// GenerateStructured runs one structured-output call. All recoverable
// failures are absorbed here and logged at WARN; the caller only sees the
// Outcome.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest) Outcome {
	if c.provider == nil {
		return Outcome{Reason: FallbackDisabled}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.log.Warnw("rate limiter wait cancelled", "error", err)
			return Outcome{Reason: FallbackCallFailed, Err: err}
		}
	}

	resp, err := c.provider.GenerateStructured(ctx, req)
	if err != nil {
		c.log.Warnw("structured output call failed, falling back",
			"provider", c.provider.Name(), "error", err)
		return Outcome{Reason: FallbackCallFailed, Err: err}
	}

	if err := validateAgainstSchema(req.OutputSchema, resp.Raw); err != nil {
		c.log.Warnw("structured output failed schema validation, falling back",
			"provider", c.provider.Name(), "error", err)
		return Outcome{Reason: FallbackBadOutput, Err: err}
	}

	c.log.Debugw("structured output call succeeded",
		"provider", c.provider.Name(), "model", resp.Model, "tokens", resp.TokensUsed)
	return Outcome{Raw: resp.Raw}
}

// validateAgainstSchema checks a JSON document against a JSON schema.
func validateAgainstSchema(schema, doc json.RawMessage) error {
	compiled, err := jsonschema.CompileString("output_schema.json", string(schema))
	if err != nil {
		return fmt.Errorf("compile output schema: %w", err)
	}

	var value interface{}
	if err := json.Unmarshal(doc, &value); err != nil {
		return fmt.Errorf("decode output: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("validate output: %w", err)
	}
	return nil
}
