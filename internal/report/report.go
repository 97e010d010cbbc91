// Package report renders the session's confirmed metadata as JSON, Markdown,
// and a terminal summary. Provenance and confidence are always shown:
// consumers of the output must be able to tell an AI-parsed value from an
// AI-inferred one at a glance.
package report

import (
	"sort"
	"time"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Report is the complete session outcome.
type Report struct {
	SessionID   string       `json:"session_id,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Fields      []FieldEntry `json:"fields"`

	// Warnings lists the low-confidence auto-applied values. Anything here
	// needs human review before the NWB file is submitted.
	Warnings []metadata.Warning `json:"warnings,omitempty"`

	Stats Stats `json:"stats"`
}

// FieldEntry is one confirmed field, flattened for rendering.
type FieldEntry struct {
	Name        string                  `json:"name"`
	Value       string                  `json:"value"`
	Provenance  metadata.Provenance     `json:"provenance"`
	Confidence  int                     `json:"confidence"`
	Band        metadata.ConfidenceBand `json:"band"`
	NeedsReview bool                    `json:"needs_review,omitempty"`
	Source      string                  `json:"source,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Stats summarizes the session for the terminal output.
type Stats struct {
	Confirmed   int `json:"confirmed"`
	NeedsReview int `json:"needs_review"`
	Inferred    int `json:"inferred"`
	Warnings    int `json:"warnings"`
}

// Build assembles a report from the session snapshot. Fields follow registry
// declaration order; unknown fields come last, alphabetically.
func Build(sessionID string, snapshot map[string]metadata.ConfirmedValue, warnings *metadata.Warnings, registry *schema.Registry) *Report {
	seen := make(map[string]bool, len(snapshot))
	var fields []FieldEntry

	for _, f := range registry.All() {
		if cv, ok := snapshot[f.Name]; ok {
			fields = append(fields, entry(cv))
			seen[f.Name] = true
		}
	}

	var rest []string
	for name := range snapshot {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		fields = append(fields, entry(snapshot[name]))
	}

	r := &Report{
		SessionID:   sessionID,
		GeneratedAt: time.Now().UTC(),
		Fields:      fields,
		Warnings:    warnings.Entries(),
	}
	for _, f := range fields {
		r.Stats.Confirmed++
		if f.NeedsReview {
			r.Stats.NeedsReview++
		}
		if f.Provenance == metadata.ProvenanceAIInferred {
			r.Stats.Inferred++
		}
	}
	r.Stats.Warnings = warnings.Len()
	return r
}

func entry(cv metadata.ConfirmedValue) FieldEntry {
	return FieldEntry{
		Name:        cv.FieldName,
		Value:       cv.Value,
		Provenance:  cv.Provenance,
		Confidence:  cv.Confidence,
		Band:        metadata.Band(cv.Confidence),
		NeedsReview: cv.NeedsReview,
		Source:      cv.SourceDescription,
		Timestamp:   cv.Timestamp,
	}
}
