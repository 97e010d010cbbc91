package negotiate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/intent"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/plan"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// downProvider simulates a failing LLM so every turn exercises the
// deterministic fallbacks.
type downProvider struct{}

func (p *downProvider) Name() string { return "down" }

func (p *downProvider) GenerateStructured(ctx context.Context, req llm.StructuredRequest) (*llm.StructuredResponse, error) {
	return nil, fmt.Errorf("provider unavailable")
}

func (p *downProvider) IsAvailable(ctx context.Context) bool { return false }

func newMachine(t *testing.T, missing []string, maxAskRounds int) *Machine {
	t.Helper()
	registry := schema.MustLoad()
	client := llm.NewClientWithProvider(nil, llm.Config{}, zap.NewNop())
	return NewMachine(registry, client, missing, maxAskRounds, zap.NewNop())
}

func checkDisjoint(t *testing.T, m *Machine) {
	t.Helper()
	for f := range m.State().Confirmed {
		if _, ok := m.State().Pending[f]; ok {
			t.Fatalf("Field %q is both confirmed and pending", f)
		}
	}
}

func TestMachine_Start_BatchesCriticalFields(t *testing.T) {
	m := newMachine(t, []string{"session_description", "identifier", "experimenter"}, 2)

	result := m.Start()

	if result.Done {
		t.Error("Expected an open session")
	}
	if result.Action == nil || result.Action.Kind != plan.AskBatch {
		t.Fatalf("Expected a critical batch ask, got %+v", result.Action)
	}
	if m.State().Mode != metadata.ModeAskedOnce {
		t.Errorf("Expected mode asked_once after first ask, got %s", m.State().Mode)
	}
	if m.State().AskRounds != 1 {
		t.Errorf("Expected the opening ask to consume one round, got %d", m.State().AskRounds)
	}
}

func TestMachine_HandleTurn_ConfirmFlow(t *testing.T) {
	m := newMachine(t, []string{"experimenter"}, 2)
	ctx := context.Background()

	start := m.Start()
	if start.Action == nil || start.Action.Kind != plan.AskSingle {
		t.Fatalf("Expected a single recommended ask, got %+v", start.Action)
	}

	// A bare value reply is parsed against the asked field.
	r1, err := m.HandleTurn(ctx, "Jane Doe")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r1.Intent != intent.IntentNewData {
		t.Errorf("Expected new_data, got %s", r1.Intent)
	}
	pending, ok := m.State().Pending["experimenter"]
	if !ok {
		t.Fatalf("Expected experimenter pending, got %+v", m.State().Pending)
	}
	if pending.NormalizedValue != "Jane Doe" || !pending.WasExplicit {
		t.Errorf("Unexpected candidate: %+v", pending)
	}
	checkDisjoint(t, m)

	r2, err := m.HandleTurn(ctx, "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r2.Framing != FramingConfirmed {
		t.Errorf("Expected confirmed framing, got %s", r2.Framing)
	}
	if len(r2.Applied) != 1 || r2.Applied[0].Field != "experimenter" {
		t.Fatalf("Expected experimenter applied, got %+v", r2.Applied)
	}
	confirmed, ok := m.Snapshot()["experimenter"]
	if !ok {
		t.Fatal("Expected experimenter confirmed")
	}
	if confirmed.Provenance != metadata.ProvenanceAIParsed {
		t.Errorf("Explicit values must be AI_PARSED, got %s", confirmed.Provenance)
	}
	if len(m.State().Pending) != 0 {
		t.Errorf("Pending must be empty after confirmation, got %+v", m.State().Pending)
	}
	if !r2.Done {
		t.Error("Expected the session to be done with nothing left to ask")
	}
	checkDisjoint(t, m)
}

func TestMachine_HandleTurn_ResupplyAfterConfirm(t *testing.T) {
	m := newMachine(t, []string{"experimenter"}, 5)
	ctx := context.Background()
	m.Start()

	if _, err := m.HandleTurn(ctx, "Jane Doe"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if _, err := m.HandleTurn(ctx, "yes"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if _, ok := m.Snapshot()["experimenter"]; !ok {
		t.Fatal("Expected experimenter confirmed")
	}

	// Volunteering a new value for a confirmed field supersedes it; the field
	// must never sit in both maps at the end of the turn.
	if _, err := m.HandleTurn(ctx, "experimenter: John Smith"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	checkDisjoint(t, m)
	if _, ok := m.Snapshot()["experimenter"]; ok {
		t.Error("Superseded confirmed value must be removed while the new one is pending")
	}
	if got := m.State().Pending["experimenter"].NormalizedValue; got != "John Smith" {
		t.Fatalf("Expected the new value pending, got %q", got)
	}

	r, err := m.HandleTurn(ctx, "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Framing != FramingConfirmed {
		t.Errorf("Expected confirmed framing, got %s", r.Framing)
	}
	if got := m.Snapshot()["experimenter"].Value; got != "John Smith" {
		t.Errorf("Expected the corrected value confirmed, got %q", got)
	}
	checkDisjoint(t, m)
}

func TestMachine_Start_SurfacesStagedSuggestions(t *testing.T) {
	m := newMachine(t, []string{"lab"}, 5)
	m.MergeCandidates([]metadata.CandidateValue{{
		FieldName:       "species",
		RawInput:        "C57BL/6J",
		NormalizedValue: "Mus musculus",
		Confidence:      95,
		Reasoning:       "known strain",
		WasExplicit:     false,
	}})

	start := m.Start()

	if start.Done {
		t.Error("Expected an open session with a staged suggestion")
	}
	if !strings.Contains(start.Reply, "species") || !strings.Contains(start.Reply, "Mus musculus") {
		t.Fatalf("Staged suggestions must be shown before anything can confirm them, got %q", start.Reply)
	}
	if !strings.Contains(start.Reply, "(inferred)") {
		t.Errorf("Inferred suggestions must be marked as such, got %q", start.Reply)
	}

	// The first-turn confirm now accepts values the user has actually seen.
	r, err := m.HandleTurn(context.Background(), "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Framing != FramingConfirmed {
		t.Errorf("Expected confirmed framing, got %s", r.Framing)
	}
	if len(r.Applied) != 1 || r.Applied[0].Field != "species" {
		t.Fatalf("Expected species applied, got %+v", r.Applied)
	}
	checkDisjoint(t, m)
}

func TestMachine_HandleTurn_ConfirmWithNothingPending(t *testing.T) {
	m := newMachine(t, []string{"lab"}, 5)
	m.Start()

	r, err := m.HandleTurn(context.Background(), "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Framing != FramingNone || len(r.Applied) != 0 {
		t.Errorf("Empty-pending confirm must apply nothing, got %+v", r)
	}
	if !strings.Contains(r.Reply, "nothing pending") {
		t.Errorf("Expected an explanatory reply, got %q", r.Reply)
	}
}

func TestMachine_HandleTurn_SkipAllIsDurable(t *testing.T) {
	m := newMachine(t, []string{"lab", "institution"}, 5)
	ctx := context.Background()
	m.Start()

	r1, err := m.HandleTurn(ctx, "skip all")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if !r1.Done {
		t.Error("Expected done after skip all")
	}
	if m.State().Mode != metadata.ModeUserDeclined {
		t.Errorf("Expected user_declined, got %s", m.State().Mode)
	}
	if !m.State().IsDeclined("lab") || !m.State().IsDeclined("institution") {
		t.Errorf("Expected both fields declined, got %+v", m.State().Declined)
	}

	// The decision is durable: later turns never ask again.
	for _, text := range []string{"lab: Allen Institute", "yes", "hello"} {
		r, err := m.HandleTurn(ctx, text)
		if err != nil {
			t.Fatalf("HandleTurn(%q) failed: %v", text, err)
		}
		if !r.Done || r.Action != nil {
			t.Errorf("Turn %q must short-circuit, got %+v", text, r)
		}
	}
	if m.State().Mode != metadata.ModeUserDeclined {
		t.Errorf("Mode changed after short-circuit: %s", m.State().Mode)
	}
}

func TestMachine_HandleTurn_PendingSurvivesParseTrouble(t *testing.T) {
	registry := schema.MustLoad()
	client := llm.NewClientWithProvider(&downProvider{}, llm.Config{}, zap.NewNop())
	m := NewMachine(registry, client, []string{"experimenter", "lab"}, 5, zap.NewNop())
	ctx := context.Background()
	m.Start()

	if _, err := m.HandleTurn(ctx, "experimenter: Jane Doe"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if _, ok := m.State().Pending["experimenter"]; !ok {
		t.Fatalf("Expected experimenter pending, got %+v", m.State().Pending)
	}

	// A message the parser can't use must not drop the pending entry.
	r, err := m.HandleTurn(ctx, "=== ???")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if _, ok := m.State().Pending["experimenter"]; !ok {
		t.Error("Pending entry was lost on a failed parse")
	}
	if len(r.Applied) != 0 {
		t.Errorf("Nothing should be applied, got %+v", r.Applied)
	}
	checkDisjoint(t, m)

	// Confirming afterwards still works on the surviving entry.
	r2, err := m.HandleTurn(ctx, "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r2.Framing != FramingConfirmed || len(r2.Applied) != 1 {
		t.Errorf("Expected the surviving entry confirmed, got %+v", r2)
	}
}

func TestMachine_HandleTurn_SequentialPreference(t *testing.T) {
	m := newMachine(t, []string{"session_description", "identifier"}, 5)
	ctx := context.Background()
	m.Start()

	r, err := m.HandleTurn(ctx, "one at a time please")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Intent != intent.IntentSequential {
		t.Fatalf("Expected sequential intent, got %s", r.Intent)
	}
	if !m.State().SequentialPreference {
		t.Error("Expected sequential preference recorded")
	}
	if r.Action == nil || r.Action.Kind != plan.AskSingle {
		t.Fatalf("Expected an immediate single-field ask, got %+v", r.Action)
	}
	if r.Action.CanSkip {
		t.Error("Critical single-field asks are not skippable")
	}
	if len(r.Action.Fields) != 1 || r.Action.Fields[0] != "session_description" {
		t.Errorf("Expected session_description first, got %v", r.Action.Fields)
	}
}

func TestMachine_HandleTurn_SkipFieldDeclinesAskedField(t *testing.T) {
	m := newMachine(t, []string{"lab"}, 5)
	ctx := context.Background()
	m.Start()

	r, err := m.HandleTurn(ctx, "skip")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if !m.State().IsDeclined("lab") {
		t.Error("Expected lab declined after skip")
	}
	if !r.Done {
		t.Error("Expected done with nothing left to ask")
	}
}

func TestMachine_HandleTurn_EmptyInputAutoApplies(t *testing.T) {
	m := newMachine(t, []string{"species"}, 5)
	ctx := context.Background()
	m.Start()

	m.MergeCandidates([]metadata.CandidateValue{{
		FieldName:       "species",
		RawInput:        "C57BL/6J",
		NormalizedValue: "Mus musculus",
		Confidence:      95,
		Reasoning:       "known strain",
		WasExplicit:     false,
	}})

	r, err := m.HandleTurn(ctx, "")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Framing != FramingAutoApplied {
		t.Errorf("Silent skip must frame as auto-applied, got %s", r.Framing)
	}
	confirmed, ok := m.Snapshot()["species"]
	if !ok {
		t.Fatal("Expected species confirmed")
	}
	if confirmed.Provenance != metadata.ProvenanceAIInferred {
		t.Errorf("Inferred values must be AI_INFERRED, got %s", confirmed.Provenance)
	}
	checkDisjoint(t, m)
}

func TestMachine_HandleTurn_AskBudgetExhaustion(t *testing.T) {
	m := newMachine(t, []string{"lab", "institution"}, 2)
	ctx := context.Background()

	m.Start() // round 1

	// A no-op confirm makes no progress; the re-ask spends round 2.
	if _, err := m.HandleTurn(ctx, "yes"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if m.State().AskRounds != 2 {
		t.Fatalf("Expected 2 rounds spent, got %d", m.State().AskRounds)
	}

	r, err := m.HandleTurn(ctx, "yes")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if !r.Done {
		t.Error("Expected short-circuit once the budget is spent")
	}
	if m.State().Mode != metadata.ModeProceedingMinimal {
		t.Errorf("Expected proceeding_minimal, got %s", m.State().Mode)
	}

	// Durable for the rest of the session.
	r2, err := m.HandleTurn(ctx, "lab: Allen Institute")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if !r2.Done || r2.Action != nil {
		t.Errorf("Expected continued short-circuit, got %+v", r2)
	}
}

func TestMachine_HandleTurn_EditKeepsPending(t *testing.T) {
	m := newMachine(t, []string{"experimenter"}, 5)
	ctx := context.Background()
	m.Start()

	if _, err := m.HandleTurn(ctx, "Jane Doe"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	r, err := m.HandleTurn(ctx, "no wait")
	if err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if r.Intent != intent.IntentEdit {
		t.Fatalf("Expected edit intent, got %s", r.Intent)
	}
	if _, ok := m.State().Pending["experimenter"]; !ok {
		t.Error("Edit must not drop pending entries")
	}

	// The corrected value replaces the pending entry.
	if _, err := m.HandleTurn(ctx, "John Smith"); err != nil {
		t.Fatalf("HandleTurn failed: %v", err)
	}
	if got := m.State().Pending["experimenter"].NormalizedValue; got != "John Smith" {
		t.Errorf("Expected corrected value, got %q", got)
	}
}
