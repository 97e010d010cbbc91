package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  *StructuredResponse
	err       error
	calls     int
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) GenerateStructured(ctx context.Context, req StructuredRequest) (*StructuredResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

var testSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"intent": {"type": "string"},
		"confidence": {"type": "integer"}
	},
	"required": ["intent", "confidence"]
}`)

func TestClient_GenerateStructured_Disabled(t *testing.T) {
	client := NewClientWithProvider(nil, DefaultConfig(), zap.NewNop())

	if client.Enabled() {
		t.Error("Expected client with nil provider to be disabled")
	}

	outcome := client.GenerateStructured(context.Background(), StructuredRequest{
		Prompt:       "hello",
		OutputSchema: testSchema,
	})

	if outcome.OK() {
		t.Error("Expected fallback outcome when disabled")
	}
	if outcome.Reason != FallbackDisabled {
		t.Errorf("Expected reason %s, got %s", FallbackDisabled, outcome.Reason)
	}
}

func TestClient_GenerateStructured_CallFailure(t *testing.T) {
	mock := &MockProvider{
		name: "mock",
		err:  errors.New("connection refused"),
	}
	client := NewClientWithProvider(mock, Config{}, zap.NewNop())

	outcome := client.GenerateStructured(context.Background(), StructuredRequest{
		Prompt:       "hello",
		OutputSchema: testSchema,
	})

	if outcome.OK() {
		t.Error("Expected fallback outcome on provider error")
	}
	if outcome.Reason != FallbackCallFailed {
		t.Errorf("Expected reason %s, got %s", FallbackCallFailed, outcome.Reason)
	}
	if outcome.Err == nil {
		t.Error("Expected underlying error to be preserved")
	}
}

func TestClient_GenerateStructured_SchemaViolation(t *testing.T) {
	mock := &MockProvider{
		name: "mock",
		response: &StructuredResponse{
			Raw: json.RawMessage(`{"intent": "confirm"}`), // missing required confidence
		},
	}
	client := NewClientWithProvider(mock, Config{}, zap.NewNop())

	outcome := client.GenerateStructured(context.Background(), StructuredRequest{
		Prompt:       "hello",
		OutputSchema: testSchema,
	})

	if outcome.OK() {
		t.Error("Expected fallback outcome on schema violation")
	}
	if outcome.Reason != FallbackBadOutput {
		t.Errorf("Expected reason %s, got %s", FallbackBadOutput, outcome.Reason)
	}
}

func TestClient_GenerateStructured_Success(t *testing.T) {
	mock := &MockProvider{
		name: "mock",
		response: &StructuredResponse{
			Raw:   json.RawMessage(`{"intent": "confirm", "confidence": 85}`),
			Model: "mock-1",
		},
	}
	client := NewClientWithProvider(mock, Config{}, zap.NewNop())

	outcome := client.GenerateStructured(context.Background(), StructuredRequest{
		Prompt:       "yes please",
		OutputSchema: testSchema,
	})

	if !outcome.OK() {
		t.Fatalf("Expected success, got fallback %s (%v)", outcome.Reason, outcome.Err)
	}

	var decoded struct {
		Intent     string `json:"intent"`
		Confidence int    `json:"confidence"`
	}
	if err := outcome.Decode(&decoded); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Intent != "confirm" || decoded.Confidence != 85 {
		t.Errorf("Unexpected decoded value: %+v", decoded)
	}
}

func TestOutcome_Decode_OnFallbackIsCallerBug(t *testing.T) {
	outcome := Outcome{Reason: FallbackDisabled}
	var v map[string]interface{}
	if err := outcome.Decode(&v); err == nil {
		t.Error("Expected error decoding a fallback outcome")
	}
}

func TestNewProvider_UnknownName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "gemini-flash"
	if _, err := NewProvider(cfg); err == nil {
		t.Error("Expected error for unknown provider name")
	}
}

func TestNewProvider_EmptyNameIsDisabled(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p != nil {
		t.Error("Expected nil provider when disabled")
	}
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		if got := stripJSONFences(tt.in); got != tt.want {
			t.Errorf("stripJSONFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
