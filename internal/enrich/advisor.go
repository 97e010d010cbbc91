// Package enrich proposes additional inferred metadata from a snapshot:
// species from strain, protocol from recording type, standardized age and
// sex strings, device capabilities from the knowledge graph. Suggestions
// feed the same pending pool as parsed candidates, so both paths are
// comparable under the same confidence-threshold policy.
package enrich

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
)

// sourceReliability scales each rule's base confidence in a second pass.
// Exact taxonomic mappings and mechanical standardizations are fully
// trusted; graph lookups and keyword inference a little less.
var sourceReliability = map[string]float64{
	"strain_species_mapping": 1.0,
	"age_standardization":    1.0,
	"sex_standardization":    1.0,
	"device_capability":      0.9,
	"protocol_inference":     0.8,
}

// Advisor runs the enrichment rules over a metadata snapshot.
type Advisor struct {
	graph KnowledgeGraph
	log   *zap.SugaredLogger
}

// NewAdvisor creates an advisor. The graph may be nil; graph-backed rules
// simply produce nothing.
func NewAdvisor(graph KnowledgeGraph, log *zap.Logger) *Advisor {
	return &Advisor{
		graph: graph,
		log:   log.Sugar().With("component", "enrich"),
	}
}

// Suggest runs every rule and returns all non-nil results, scored by base
// confidence times the source-reliability multiplier.
func (a *Advisor) Suggest(ctx context.Context, snapshot map[string]string) []Suggestion {
	rules := []func(map[string]string) *Suggestion{
		ruleStrainSpecies,
		ruleAgeStandardization,
		ruleSexStandardization,
		ruleRecordingProtocol,
	}

	var suggestions []Suggestion
	for _, rule := range rules {
		if s := rule(snapshot); s != nil {
			suggestions = append(suggestions, *s)
		}
	}
	if s := a.deviceCapabilityRule(ctx, snapshot); s != nil {
		suggestions = append(suggestions, *s)
	}

	for i := range suggestions {
		suggestions[i].Confidence = scoreSuggestion(suggestions[i])
		a.log.Debugw("enrichment suggestion",
			"field", suggestions[i].Field,
			"value", suggestions[i].EnrichedValue,
			"confidence", suggestions[i].Confidence,
			"source", suggestions[i].Source)
	}

	return suggestions
}

// scoreSuggestion applies the source-reliability multiplier, clamped to 1.
func scoreSuggestion(s Suggestion) float64 {
	multiplier, ok := sourceReliability[s.Source]
	if !ok {
		multiplier = 1.0
	}
	return math.Min(s.Confidence*multiplier, 1.0)
}

// Candidate converts a suggestion to the candidate shape used by the
// pending pool. Enrichment is always inferred, never explicit, and the 0-1
// confidence is rescaled to the 0-100 contract.
func (s Suggestion) Candidate() metadata.CandidateValue {
	return metadata.CandidateValue{
		FieldName:       s.Field,
		RawInput:        s.OriginalValue,
		NormalizedValue: s.EnrichedValue,
		Confidence:      metadata.ClampConfidence(int(math.Round(s.Confidence * 100))),
		Reasoning:       s.Reasoning,
		WasExplicit:     false,
	}
}
