// Package policy implements the three-tier auto-apply rule: high-confidence
// candidates apply silently, medium-confidence ones apply with a visible
// best-guess note, low-confidence ones apply flagged and land in the
// warnings side-table. Silent acceptance of low-confidence guesses would
// corrupt archival metadata; demanding confirmation of every field would
// make auto-apply pointless. The fixed thresholds encode that trade-off.
package policy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
)

// Decision is the outcome of applying one candidate.
type Decision struct {
	Confirmed metadata.ConfirmedValue

	// Note is a user-visible best-guess note, set only for the medium tier.
	Note string

	// Flagged is true for the low tier: the field was also recorded in the
	// warnings side-table.
	Flagged bool
}

// Engine applies candidates according to the confidence tiers.
type Engine struct {
	warnings *metadata.Warnings
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewEngine creates a policy engine recording low-tier flags into warnings.
func NewEngine(warnings *metadata.Warnings, log *zap.Logger) *Engine {
	return &Engine{
		warnings: warnings,
		log:      log.Sugar().With("component", "policy"),
		now:      time.Now,
	}
}

// Decide converts a candidate into a confirmed value, keyed purely on the
// candidate's confidence. Provenance always distinguishes AI_PARSED
// (explicitly stated, machine-normalized) from AI_INFERRED (system deduced).
func (e *Engine) Decide(c metadata.CandidateValue) Decision {
	provenance := metadata.ProvenanceAIInferred
	if c.WasExplicit {
		provenance = metadata.ProvenanceAIParsed
	}

	confirmed := metadata.ConfirmedValue{
		FieldName:         c.FieldName,
		Value:             c.NormalizedValue,
		Provenance:        provenance,
		Confidence:        c.Confidence,
		SourceDescription: c.Reasoning,
		Timestamp:         e.now().UTC(),
	}

	decision := Decision{}

	switch metadata.Band(c.Confidence) {
	case metadata.BandHigh:
		// Applied without surfacing anything to the user. A parse-time
		// review flag (e.g. an unparseable date) still sticks.
		confirmed.NeedsReview = c.NeedsReview

	case metadata.BandMedium:
		confirmed.NeedsReview = true
		decision.Note = fmt.Sprintf("best guess for %s: %q", c.FieldName, c.NormalizedValue)

	case metadata.BandLow:
		confirmed.NeedsReview = true
		decision.Flagged = true
		e.warnings.Add(c.FieldName, c.RawInput,
			fmt.Sprintf("low-confidence value %q, please review before submission", c.NormalizedValue))
	}

	decision.Confirmed = confirmed

	e.log.Debugw("applied candidate",
		"field", c.FieldName,
		"confidence", c.Confidence,
		"band", metadata.Band(c.Confidence),
		"provenance", provenance,
		"flagged", decision.Flagged)

	return decision
}
