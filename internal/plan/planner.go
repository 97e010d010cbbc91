// Package plan decides what to ask the user next: critical fields in one
// batch (or one at a time on request), recommended fields strictly one at a
// time, optional fields as a single skippable offer.
package plan

import (
	"fmt"
	"strings"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Kind classifies a planner action.
type Kind string

const (
	// AskBatch requests several fields in one prompt.
	AskBatch Kind = "ask_batch"
	// AskSingle requests exactly one field.
	AskSingle Kind = "ask_single"
	// OfferOptional offers the remaining optional fields with an explicit
	// skip-all affordance.
	OfferOptional Kind = "offer_optional"
	// Proceed means nothing is left to ask.
	Proceed Kind = "proceed"
)

// Action is the planner's output: what to ask and how.
type Action struct {
	Kind   Kind
	Phase  metadata.Phase
	Fields []string
	Prompt string

	// CanSkip is false only for critical single-field mode, where the
	// prompt carries a stronger warning.
	CanSkip bool

	// Remaining counts fields still outstanding in the current phase,
	// including the one(s) being asked.
	Remaining int
}

// Planner computes the next request from the registry and session state.
type Planner struct {
	registry *schema.Registry
}

// NewPlanner creates a planner over the registry.
func NewPlanner(registry *schema.Registry) *Planner {
	return &Planner{registry: registry}
}

// Next returns the next action for the given missing fields. Fields within a
// tier keep registry declaration order; unknown missing fields count as
// optional and follow the registry-ordered optionals in their given order.
func (p *Planner) Next(state *metadata.NegotiationState, missing []string) Action {
	critical, recommended, optional := p.partition(state, missing)

	switch {
	case len(critical) > 0:
		if state.SequentialPreference {
			field := critical[0]
			return Action{
				Kind:      AskSingle,
				Phase:     metadata.PhaseCritical,
				Fields:    []string{field},
				Prompt:    p.singlePrompt(field, len(critical), false),
				CanSkip:   false,
				Remaining: len(critical),
			}
		}
		return Action{
			Kind:      AskBatch,
			Phase:     metadata.PhaseCritical,
			Fields:    critical,
			Prompt:    p.batchPrompt(critical),
			CanSkip:   true,
			Remaining: len(critical),
		}

	case len(recommended) > 0:
		// Recommended fields are never batched: once critical gaps are
		// filled the user gets one question at a time.
		field := recommended[0]
		return Action{
			Kind:      AskSingle,
			Phase:     metadata.PhaseRecommended,
			Fields:    []string{field},
			Prompt:    p.singlePrompt(field, len(recommended), true),
			CanSkip:   true,
			Remaining: len(recommended),
		}

	case len(optional) > 0:
		return Action{
			Kind:      OfferOptional,
			Phase:     metadata.PhaseOptional,
			Fields:    optional,
			Prompt:    p.optionalPrompt(optional),
			CanSkip:   true,
			Remaining: len(optional),
		}

	default:
		return Action{
			Kind:   Proceed,
			Phase:  metadata.PhaseDone,
			Prompt: "All metadata gathered, proceeding with the conversion.",
		}
	}
}

// partition splits missing fields by tier in registry order, dropping
// declined and already-resolved fields.
func (p *Planner) partition(state *metadata.NegotiationState, missing []string) (critical, recommended, optional []string) {
	wanted := make(map[string]bool, len(missing))
	for _, f := range missing {
		if !state.IsDeclined(f) && !state.IsResolved(f) {
			wanted[f] = true
		}
	}

	for _, f := range p.registry.All() {
		if !wanted[f.Name] {
			continue
		}
		delete(wanted, f.Name)
		switch f.Tier {
		case schema.TierCritical:
			critical = append(critical, f.Name)
		case schema.TierRecommended:
			recommended = append(recommended, f.Name)
		default:
			optional = append(optional, f.Name)
		}
	}

	// Unknown fields degrade to optional, after the registry-ordered ones.
	for _, f := range missing {
		if wanted[f] {
			delete(wanted, f)
			optional = append(optional, f)
		}
	}

	return critical, recommended, optional
}

func (p *Planner) batchPrompt(fields []string) string {
	var b strings.Builder
	b.WriteString("A few required details are missing. Could you provide:\n")
	for _, name := range fields {
		b.WriteString("  - " + p.describeField(name) + "\n")
	}
	b.WriteString("You can answer in one message, in any order.")
	return b.String()
}

func (p *Planner) singlePrompt(field string, remaining int, canSkip bool) string {
	desc := p.describeField(field)
	var b strings.Builder
	if remaining > 1 {
		fmt.Fprintf(&b, "(%d to go) ", remaining)
	}
	fmt.Fprintf(&b, "What is the %s?", desc)
	if !canSkip {
		b.WriteString(" This one is required for a valid NWB file.")
	} else {
		b.WriteString(` (say "skip" to leave it out)`)
	}
	return b.String()
}

func (p *Planner) optionalPrompt(fields []string) string {
	return fmt.Sprintf(
		"There are %d optional fields you could still fill in (%s). Add any of them, or say \"skip all\" to finish.",
		len(fields), strings.Join(fields, ", "))
}

// describeField renders a field name with its example, when one exists.
func (p *Planner) describeField(name string) string {
	f, ok := p.registry.Get(name)
	if !ok || f.Example == "" {
		return name
	}
	return fmt.Sprintf("%s (e.g. %q)", name, f.Example)
}
