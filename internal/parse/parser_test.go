package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// erroringProvider raises on every call, simulating a dead LLM service.
type erroringProvider struct{ calls int }

func (p *erroringProvider) Name() string { return "mock" }

func (p *erroringProvider) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (*llm.StructuredResponse, error) {
	p.calls++
	return nil, fmt.Errorf("service unavailable")
}

func (p *erroringProvider) IsAvailable(ctx context.Context) bool { return false }

// cannedProvider returns a fixed JSON document.
type cannedProvider struct{ raw string }

func (p *cannedProvider) Name() string { return "mock" }

func (p *cannedProvider) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (*llm.StructuredResponse, error) {
	return &llm.StructuredResponse{Raw: json.RawMessage(p.raw)}, nil
}

func (p *cannedProvider) IsAvailable(ctx context.Context) bool { return true }

func newParser(t *testing.T, provider llm.Provider) *Parser {
	t.Helper()
	client := llm.NewClientWithProvider(provider, llm.Config{}, zap.NewNop())
	return NewParser(schema.MustLoad(), client, zap.NewNop())
}

func TestParser_ParseBatch_FallbackOnLLMFailure(t *testing.T) {
	provider := &erroringProvider{}
	p := newParser(t, provider)

	candidates, err := p.ParseBatch(context.Background(), "age: P90D")
	if err != nil {
		t.Fatalf("Expected graceful fallback, got error %v", err)
	}
	if provider.calls == 0 {
		t.Error("Expected the LLM to have been attempted")
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate from fallback, got %d", len(candidates))
	}

	c := candidates[0]
	if c.FieldName != "age" {
		t.Errorf("Expected field age, got %s", c.FieldName)
	}
	if c.NormalizedValue != "P90D" {
		t.Errorf("Expected P90D, got %s", c.NormalizedValue)
	}
	if c.Confidence != fallbackPlainConfidence {
		t.Errorf("Expected fallback confidence %d, got %d", fallbackPlainConfidence, c.Confidence)
	}
	if c.Reasoning != fallbackReasoning {
		t.Errorf("Expected fallback reasoning, got %q", c.Reasoning)
	}
}

func TestParser_ParseBatch_FallbackMultiLine(t *testing.T) {
	p := newParser(t, nil) // LLM disabled entirely

	text := "experimenter: Jane Doe\nspecies: mouse; sex = female\nlab is the Smith Lab"
	candidates, err := p.ParseBatch(context.Background(), text)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	byField := make(map[string]metadata.CandidateValue)
	for _, c := range candidates {
		byField[c.FieldName] = c
	}

	if got := byField["experimenter"].NormalizedValue; got != "Jane Doe" {
		t.Errorf("experimenter = %q, want Jane Doe", got)
	}
	if got := byField["species"]; got.NormalizedValue != "Mus musculus" || got.Confidence != fallbackNormalizedConfidence {
		t.Errorf("species = %+v, want Mus musculus at confidence %d", got, fallbackNormalizedConfidence)
	}
	if got := byField["sex"]; got.NormalizedValue != "F" || got.Confidence != fallbackNormalizedConfidence {
		t.Errorf("sex = %+v, want F at confidence %d", got, fallbackNormalizedConfidence)
	}
	if got := byField["lab"].NormalizedValue; got != "the Smith Lab" {
		t.Errorf("lab = %q, want the Smith Lab", got)
	}

	for _, c := range candidates {
		if !c.WasExplicit {
			t.Errorf("Fallback candidate %s should be explicit", c.FieldName)
		}
	}
}

func TestParser_ParseBatch_FallbackUnknownKeyDegrades(t *testing.T) {
	p := newParser(t, nil)

	candidates, err := p.ParseBatch(context.Background(), "rig position: left shelf")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].FieldName != "rig_position" {
		t.Errorf("Expected unknown key passthrough rig_position, got %s", candidates[0].FieldName)
	}
}

func TestParser_ParseBatch_LLMDateNormalizationForced(t *testing.T) {
	provider := &cannedProvider{raw: `{"fields": [
		{"field_name": "session_start_time", "raw_input": "15th august 2025 around 10 am",
		 "normalized_value": "15th august 2025 around 10 am", "confidence": 85,
		 "reasoning": "stated directly", "was_explicit": true}
	]}`}
	p := newParser(t, provider)

	candidates, err := p.ParseBatch(context.Background(), "we started on the 15th august 2025 around 10 am")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}

	c := candidates[0]
	if c.NormalizedValue != "2025-08-15T10:00:00" {
		t.Errorf("Expected forced date normalization, got %q", c.NormalizedValue)
	}
	if c.NeedsReview {
		t.Error("Successful date normalization must not flag review")
	}
}

func TestParser_ParseBatch_LLMUnparseableDateKeepsRawFlagged(t *testing.T) {
	provider := &cannedProvider{raw: `{"fields": [
		{"field_name": "session_start_time", "raw_input": "right after surgery",
		 "normalized_value": "right after surgery", "confidence": 40,
		 "reasoning": "vague", "was_explicit": true}
	]}`}
	p := newParser(t, provider)

	candidates, err := p.ParseBatch(context.Background(), "right after surgery")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	c := candidates[0]
	if c.NormalizedValue != "right after surgery" {
		t.Errorf("Expected raw value kept, got %q", c.NormalizedValue)
	}
	if !c.NeedsReview {
		t.Error("Unparseable date must flag needs_review")
	}
}

func TestParser_ParseBatch_LLMConfidenceClamped(t *testing.T) {
	provider := &cannedProvider{raw: `{"fields": [
		{"field_name": "lab", "normalized_value": "Smith Lab", "confidence": 100,
		 "was_explicit": true}
	]}`}
	p := newParser(t, provider)

	candidates, err := p.ParseBatch(context.Background(), "Smith Lab")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if candidates[0].Confidence != 100 {
		t.Errorf("Expected confidence 100, got %d", candidates[0].Confidence)
	}
}

func TestParser_ParseSingle_RequiresFieldName(t *testing.T) {
	p := newParser(t, nil)

	if _, err := p.ParseSingle(context.Background(), "", "anything"); err == nil {
		t.Error("Expected error for missing field name (caller bug)")
	}
}

func TestParser_ParseSingle_FallbackNormalizes(t *testing.T) {
	p := newParser(t, &erroringProvider{})

	c, err := p.ParseSingle(context.Background(), "species", "mouse")
	if err != nil {
		t.Fatalf("Expected graceful fallback, got %v", err)
	}
	if c.NormalizedValue != "Mus musculus" {
		t.Errorf("Expected synonym normalization, got %q", c.NormalizedValue)
	}
	if c.Confidence != fallbackNormalizedConfidence {
		t.Errorf("Expected confidence %d, got %d", fallbackNormalizedConfidence, c.Confidence)
	}
}

func TestParser_ParseBatch_EmptyText(t *testing.T) {
	p := newParser(t, nil)

	candidates, err := p.ParseBatch(context.Background(), "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("Expected no candidates for empty text, got %d", len(candidates))
	}
}
