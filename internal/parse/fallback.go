package parse

import (
	"regexp"
	"strings"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/metadata"
	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Heuristic confidence scores for the pattern extractor: a known synonym
// normalization is strong evidence the key/value reading was right.
const (
	fallbackNormalizedConfidence = 90
	fallbackPlainConfidence      = 60
)

const fallbackReasoning = "pattern-based normalization"

// kvRe matches one "key: value" / "key = value" / "key is value" segment.
var kvRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_ /-]{0,40}?)\s*(?::|=|\bis\b)\s*(.+?)\s*$`)

// extractPairs runs the deterministic key/value extractor over free text.
// Segments are lines, further split on semicolons. Produces the same
// CandidateValue shape as the LLM path so downstream code is LLM-agnostic.
func extractPairs(registry *schema.Registry, text string) []metadata.CandidateValue {
	var candidates []metadata.CandidateValue
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		for _, segment := range strings.Split(line, ";") {
			m := kvRe.FindStringSubmatch(segment)
			if m == nil {
				continue
			}
			key, value := m[1], strings.TrimRight(m[2], ". ")
			if value == "" {
				continue
			}

			field, known := registry.Resolve(key)
			if !known {
				// Unknown keys degrade to optional passthrough fields.
				field = strings.ToLower(strings.Join(strings.Fields(key), "_"))
			}
			if seen[field] {
				continue
			}
			seen[field] = true

			candidates = append(candidates, buildFallbackCandidate(registry, field, segment, value))
		}
	}

	return candidates
}

// buildFallbackCandidate normalizes one extracted pair into a candidate.
func buildFallbackCandidate(registry *schema.Registry, field, rawInput, value string) metadata.CandidateValue {
	def := registry.FieldOrOptional(field)

	normalized, matched := registry.Normalize(field, value)
	confidence := fallbackPlainConfidence
	if matched {
		confidence = fallbackNormalizedConfidence
	}

	needsReview := false
	if def.Type == schema.TypeDate {
		if iso, err := NormalizeDate(normalized); err == nil {
			normalized = iso
		} else {
			needsReview = true
		}
	}

	return metadata.CandidateValue{
		FieldName:       field,
		RawInput:        strings.TrimSpace(rawInput),
		NormalizedValue: normalized,
		Confidence:      confidence,
		Reasoning:       fallbackReasoning,
		WasExplicit:     true, // the user typed the pair out
		NeedsReview:     needsReview,
	}
}
