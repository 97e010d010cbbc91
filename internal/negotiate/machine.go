// Package negotiate orchestrates the per-turn metadata conversation: it
// classifies the user's intent, routes to parsing or committal, and asks
// the planner what to request next. One Machine owns one session's state;
// turns are strictly sequential.
package negotiate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/intent"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/llm"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/parse"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/plan"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/policy"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Framing distinguishes how committed values are presented to the user.
// "confirmed" means the user explicitly accepted them; "auto-applied" means
// the system applied them because the user skipped or stayed silent. The
// underlying committal mechanism is identical; the framing must survive into
// the turn summary for provenance auditing.
type Framing string

const (
	FramingConfirmed   Framing = "confirmed"
	FramingAutoApplied Framing = "auto-applied"
	FramingNone        Framing = "none"
)

// AppliedField summarizes one committed field for the turn result.
type AppliedField struct {
	Field   string
	Value   string
	Note    string
	Flagged bool
}

// TurnResult is everything one turn produced: the reply text, what was
// committed and under which framing, and the planner's next request (nil
// when the machine is waiting for confirmation or corrections instead).
type TurnResult struct {
	Reply   string
	Intent  intent.Intent
	Applied []AppliedField
	Framing Framing
	Action  *plan.Action
	Done    bool
}

// Machine drives one session's negotiation. Not safe for concurrent use;
// callers serialize turns per session.
type Machine struct {
	registry   *schema.Registry
	classifier *intent.Classifier
	parser     *parse.Parser
	policy     *policy.Engine
	planner    *plan.Planner
	state      *metadata.NegotiationState
	warnings   *metadata.Warnings

	missing      []string
	maxAskRounds int

	// lastAsk remembers the fields of the most recent ask prompt, so a bare
	// value reply can be parsed against the asked field and a "skip" can
	// decline it.
	lastAsk []string

	log *zap.SugaredLogger
}

// NewMachine wires a machine for one session. The missing list comes from
// the validation collaborator; the client may be disabled, in which case
// every turn uses the deterministic paths.
func NewMachine(registry *schema.Registry, client *llm.Client, missing []string, maxAskRounds int, log *zap.Logger) *Machine {
	warnings := &metadata.Warnings{}
	return &Machine{
		registry:     registry,
		classifier:   intent.NewClassifier(client, log),
		parser:       parse.NewParser(registry, client, log),
		policy:       policy.NewEngine(warnings, log),
		planner:      plan.NewPlanner(registry),
		state:        metadata.NewNegotiationState(),
		warnings:     warnings,
		missing:      missing,
		maxAskRounds: maxAskRounds,
		log:          log.Sugar().With("component", "negotiate"),
	}
}

// Start issues the opening prompt before any user input. It is the session's
// first proactive ask round. Candidates staged before the session opened
// (enrichment suggestions, pre-parsed uploads) are listed first: a value must
// be shown to the user before any turn can confirm or auto-apply it.
func (m *Machine) Start() *TurnResult {
	action := m.planner.Next(m.state, m.missing)
	result := &TurnResult{
		Reply:   action.Prompt,
		Framing: FramingNone,
		Action:  &action,
		Done:    action.Kind == plan.Proceed && len(m.state.Pending) == 0,
	}
	if len(m.state.Pending) > 0 {
		result.Reply = m.confirmationPrompt()
		if action.Kind != plan.Proceed {
			result.Reply += "\n" + action.Prompt
		}
	}
	if action.Kind != plan.Proceed {
		m.noteAsk(action, false)
	}
	return result
}

// HandleTurn processes one user message against the session state. It never
// returns an error for parser or LLM trouble; those degrade to deterministic
// behavior within the turn.
func (m *Machine) HandleTurn(ctx context.Context, userText string) (*TurnResult, error) {
	if r := m.shortCircuit(); r != nil {
		return r, nil
	}

	cls := m.classify(ctx, userText)
	m.log.Debugw("turn", "intent", cls.Intent, "source", cls.Source, "pending", len(m.state.Pending))

	switch cls.Intent {
	case intent.IntentConfirm:
		return m.handleCommit(cls.Intent, FramingConfirmed), nil
	case intent.IntentSkipField:
		return m.handleSkipField(cls.Intent), nil
	case intent.IntentSkipAll:
		return m.handleSkipAll(cls.Intent), nil
	case intent.IntentEdit:
		return m.handleEdit(cls.Intent), nil
	case intent.IntentSequential:
		return m.handleSequential(cls.Intent), nil
	default:
		return m.handleNewData(ctx, cls.Intent, userText), nil
	}
}

// MergeCandidates adds externally produced candidates (enrichment
// suggestions, pre-parsed uploads) to the pending pool. They are confirmed
// or auto-applied by later turns like any parsed candidate.
func (m *Machine) MergeCandidates(candidates []metadata.CandidateValue) {
	m.state.MergePending(candidates)
}

// Snapshot returns the confirmed values for report generation.
func (m *Machine) Snapshot() map[string]metadata.ConfirmedValue {
	return m.state.Snapshot()
}

// Warnings exposes the session's flagged-value side-table.
func (m *Machine) Warnings() *metadata.Warnings {
	return m.warnings
}

// State exposes the session state for inspection. Callers must not mutate it
// concurrently with HandleTurn.
func (m *Machine) State() *metadata.NegotiationState {
	return m.state
}

// shortCircuit enforces the hard UX guarantee: once the user declined, or
// the proactive ask budget is spent, the session never asks again.
func (m *Machine) shortCircuit() *TurnResult {
	switch {
	case m.state.Mode == metadata.ModeUserDeclined || m.state.Mode == metadata.ModeProceedingMinimal:
	case m.state.Mode == metadata.ModeAskedOnce && m.state.AskRounds >= m.maxAskRounds:
		m.state.Mode = metadata.ModeProceedingMinimal
		m.log.Infow("ask budget spent, proceeding with minimal metadata", "rounds", m.state.AskRounds)
	default:
		return nil
	}
	m.state.CurrentPhase = metadata.PhaseDone
	return &TurnResult{
		Reply:   "Proceeding with the metadata we have.",
		Framing: FramingNone,
		Done:    true,
	}
}

// classify treats empty input as a skip of the current question; everything
// else goes through the classifier.
func (m *Machine) classify(ctx context.Context, userText string) intent.Classification {
	if strings.TrimSpace(userText) == "" {
		return intent.Classification{Intent: intent.IntentSkipField, Source: intent.SourceKeyword}
	}
	return m.classifier.Classify(ctx, userText)
}

// handleCommit promotes every pending entry through the policy engine. An
// empty pending pool is an explicit no-op, never a silent success.
func (m *Machine) handleCommit(in intent.Intent, framing Framing) *TurnResult {
	if len(m.state.Pending) == 0 {
		result := &TurnResult{
			Reply:   "There is nothing pending to confirm.",
			Intent:  in,
			Framing: FramingNone,
		}
		m.attachNextAsk(result, false)
		return result
	}

	applied := m.commitPending()
	result := &TurnResult{
		Reply:   m.appliedSummary(applied, framing),
		Intent:  in,
		Applied: applied,
		Framing: framing,
	}
	m.attachNextAsk(result, true)
	return result
}

// handleSkipField auto-applies pending values when there are any; with an
// empty pool it declines the field(s) of the last ask instead.
func (m *Machine) handleSkipField(in intent.Intent) *TurnResult {
	if len(m.state.Pending) > 0 {
		return m.handleCommit(in, FramingAutoApplied)
	}

	reply := "Skipped."
	if len(m.lastAsk) > 0 {
		m.state.Decline(m.lastAsk...)
		reply = fmt.Sprintf("Skipped %s.", strings.Join(m.lastAsk, ", "))
	}
	result := &TurnResult{
		Reply:   reply,
		Intent:  in,
		Framing: FramingNone,
	}
	m.attachNextAsk(result, len(m.lastAsk) > 0)
	return result
}

// handleSkipAll declines every outstanding field and durably stops asking.
// Pending values the user already saw are auto-applied first rather than
// dropped.
func (m *Machine) handleSkipAll(in intent.Intent) *TurnResult {
	var applied []AppliedField
	framing := FramingNone
	if len(m.state.Pending) > 0 {
		applied = m.commitPending()
		framing = FramingAutoApplied
	}

	for _, f := range m.outstanding() {
		m.state.Decline(f)
	}
	m.state.Mode = metadata.ModeUserDeclined
	m.state.CurrentPhase = metadata.PhaseDone

	reply := "Understood. Proceeding with the metadata we have."
	if len(applied) > 0 {
		reply = m.appliedSummary(applied, framing) + " " + reply
	}
	return &TurnResult{
		Reply:   reply,
		Intent:  in,
		Applied: applied,
		Framing: framing,
		Done:    true,
	}
}

// handleEdit keeps the pending pool intact and asks for corrections.
func (m *Machine) handleEdit(in intent.Intent) *TurnResult {
	reply := "Okay, send the corrected values and I'll update them."
	if len(m.state.Pending) == 0 {
		reply = "Nothing is pending right now. Send the values you'd like to set."
	}
	return &TurnResult{
		Reply:   reply,
		Intent:  in,
		Framing: FramingNone,
	}
}

// handleSequential records the one-at-a-time preference and immediately
// re-plans so the very next prompt is a single field.
func (m *Machine) handleSequential(in intent.Intent) *TurnResult {
	m.state.SequentialPreference = true
	result := &TurnResult{
		Reply:   "Sure, one at a time.",
		Intent:  in,
		Framing: FramingNone,
	}
	m.attachNextAsk(result, true)
	return result
}

// handleNewData parses the message into candidates and stages them for
// confirmation. Parser trouble degrades within the turn; pending entries
// from prior turns are never lost.
func (m *Machine) handleNewData(ctx context.Context, in intent.Intent, userText string) *TurnResult {
	candidates, err := m.parseTurn(ctx, userText)
	if err != nil {
		m.log.Warnw("parse failed, keeping pending entries", "error", err)
	}

	if len(candidates) == 0 {
		return &TurnResult{
			Reply:   `I couldn't pick out any field values from that. You can write them as "field: value", one per line.`,
			Intent:  in,
			Framing: FramingNone,
		}
	}

	m.state.MergePending(candidates)
	return &TurnResult{
		Reply:   m.confirmationPrompt(),
		Intent:  in,
		Framing: FramingNone,
	}
}

// parseTurn routes a bare reply to the single asked field when the last
// prompt asked for exactly one; everything else is batch-parsed.
func (m *Machine) parseTurn(ctx context.Context, userText string) ([]metadata.CandidateValue, error) {
	if len(m.lastAsk) == 1 && !strings.ContainsAny(userText, ":=\n") {
		c, err := m.parser.ParseSingle(ctx, m.lastAsk[0], userText)
		if err != nil {
			return nil, err
		}
		return []metadata.CandidateValue{c}, nil
	}
	return m.parser.ParseBatch(ctx, userText)
}

// commitPending runs every pending candidate through the policy engine in
// deterministic field order and clears the pool.
func (m *Machine) commitPending() []AppliedField {
	fields := make([]string, 0, len(m.state.Pending))
	for f := range m.state.Pending {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	applied := make([]AppliedField, 0, len(fields))
	for _, f := range fields {
		decision := m.policy.Decide(m.state.Pending[f])
		m.state.Commit(decision.Confirmed)
		applied = append(applied, AppliedField{
			Field:   f,
			Value:   decision.Confirmed.Value,
			Note:    decision.Note,
			Flagged: decision.Flagged,
		})
	}
	return applied
}

// attachNextAsk re-invokes the planner and folds its prompt into the result.
// progressed marks turns where the user's message moved the session forward;
// asks issued without progress consume the proactive budget.
func (m *Machine) attachNextAsk(result *TurnResult, progressed bool) {
	action := m.planner.Next(m.state, m.missing)
	result.Action = &action
	if action.Kind == plan.Proceed {
		result.Done = true
		m.state.CurrentPhase = metadata.PhaseDone
		if result.Reply == "" {
			result.Reply = action.Prompt
		} else {
			result.Reply += "\n" + action.Prompt
		}
		return
	}

	m.noteAsk(action, progressed)
	if result.Reply == "" {
		result.Reply = action.Prompt
	} else {
		result.Reply += "\n" + action.Prompt
	}
}

// noteAsk records that a prompt was issued: mode advances on the first ask,
// and unproductive asks consume the session's request budget.
func (m *Machine) noteAsk(action plan.Action, progressed bool) {
	m.lastAsk = action.Fields
	m.state.CurrentPhase = action.Phase
	if m.state.Mode == metadata.ModeNotAsked {
		m.state.Mode = metadata.ModeAskedOnce
	}
	if !progressed {
		m.state.AskRounds++
	}
}

// outstanding lists the missing fields not yet confirmed or declined.
func (m *Machine) outstanding() []string {
	var out []string
	for _, f := range m.missing {
		if !m.state.IsResolved(f) {
			out = append(out, f)
		}
	}
	return out
}

// confirmationPrompt lists the pending values awaiting a yes/edit/skip.
func (m *Machine) confirmationPrompt() string {
	fields := make([]string, 0, len(m.state.Pending))
	for f := range m.state.Pending {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Here's what I understood:\n")
	for _, f := range fields {
		c := m.state.Pending[f]
		fmt.Fprintf(&b, "  - %s: %q", f, c.NormalizedValue)
		if !c.WasExplicit {
			b.WriteString(" (inferred)")
		}
		b.WriteString("\n")
	}
	b.WriteString(`Reply "yes" to confirm, "edit" to correct, or "skip" to let me apply these as-is.`)
	return b.String()
}

// appliedSummary renders a one-line summary of a committal under its framing.
func (m *Machine) appliedSummary(applied []AppliedField, framing Framing) string {
	names := make([]string, len(applied))
	for i, a := range applied {
		names[i] = a.Field
	}
	verb := "Confirmed"
	if framing == FramingAutoApplied {
		verb = "Auto-applied"
	}
	s := fmt.Sprintf("%s %d field(s): %s.", verb, len(applied), strings.Join(names, ", "))
	for _, a := range applied {
		if a.Note != "" {
			s += "\n  " + a.Note
		}
	}
	return s
}
