package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Suggestion is a proposed enrichment for one field, consumed by the
// negotiation machine identically to a parsed candidate.
type Suggestion struct {
	Field         string  `json:"field"`
	OriginalValue string  `json:"original_value,omitempty"`
	EnrichedValue string  `json:"enriched_value"`
	Confidence    float64 `json:"confidence"` // 0-1
	Source        string  `json:"source"`     // rule name
	Reasoning     string  `json:"reasoning"`
}

// Base confidences per rule. Exact lookups score higher than partial
// matches; mechanical standardizations are near-certain.
const (
	strainExactConfidence     = 0.95
	strainPartialConfidence   = 0.75
	deviceCapabilityBase      = 0.85
	protocolInferenceBase     = 0.70
	ageStandardizeConfidence  = 0.95
	sexStandardizeConfidence  = 0.98
)

// strainSpecies maps known laboratory strains to their species.
var strainSpecies = map[string]string{
	"c57bl/6":        "Mus musculus",
	"c57bl/6j":       "Mus musculus",
	"balb/c":         "Mus musculus",
	"dba/2":          "Mus musculus",
	"fvb":            "Mus musculus",
	"129s1":          "Mus musculus",
	"cd-1":           "Mus musculus",
	"sprague-dawley": "Rattus norvegicus",
	"sprague dawley": "Rattus norvegicus",
	"long-evans":     "Rattus norvegicus",
	"long evans":     "Rattus norvegicus",
	"wistar":         "Rattus norvegicus",
	"lister hooded":  "Rattus norvegicus",
}

// ruleStrainSpecies infers species from a known strain. Exact match scores
// 0.95, substring match 0.75.
func ruleStrainSpecies(snapshot map[string]string) *Suggestion {
	strain := strings.ToLower(strings.TrimSpace(snapshot["strain"]))
	if strain == "" || snapshot["species"] != "" {
		return nil
	}

	if species, ok := strainSpecies[strain]; ok {
		return &Suggestion{
			Field:         "species",
			OriginalValue: snapshot["strain"],
			EnrichedValue: species,
			Confidence:    strainExactConfidence,
			Source:        "strain_species_mapping",
			Reasoning:     fmt.Sprintf("strain %q is a known %s strain", snapshot["strain"], species),
		}
	}

	for known, species := range strainSpecies {
		if strings.Contains(strain, known) || strings.Contains(known, strain) {
			return &Suggestion{
				Field:         "species",
				OriginalValue: snapshot["strain"],
				EnrichedValue: species,
				Confidence:    strainPartialConfidence,
				Source:        "strain_species_mapping",
				Reasoning:     fmt.Sprintf("strain %q partially matches known strain %q", snapshot["strain"], known),
			}
		}
	}
	return nil
}

var agePattern = regexp.MustCompile(`^\s*~?\s*(\d+(?:\.\d+)?)\s*(hour|day|week|month|year)s?(?:\s+old)?\s*$`)

// ruleAgeStandardization rewrites "60 days" style ages as ISO 8601
// durations (P60D). Values already in ISO form are left alone.
func ruleAgeStandardization(snapshot map[string]string) *Suggestion {
	age := strings.ToLower(strings.TrimSpace(snapshot["age"]))
	if age == "" || strings.HasPrefix(age, "p") {
		return nil
	}

	m := agePattern.FindStringSubmatch(age)
	if m == nil {
		return nil
	}

	unit := map[string]string{
		"hour": "TH", "day": "D", "week": "W", "month": "M", "year": "Y",
	}[m[2]]

	var iso string
	if unit == "TH" {
		iso = "PT" + m[1] + "H"
	} else {
		iso = "P" + m[1] + unit
	}

	return &Suggestion{
		Field:         "age",
		OriginalValue: snapshot["age"],
		EnrichedValue: iso,
		Confidence:    ageStandardizeConfidence,
		Source:        "age_standardization",
		Reasoning:     fmt.Sprintf("standardized %q to ISO 8601 duration", snapshot["age"]),
	}
}

var sexNormalization = map[string]string{
	"male": "M", "m": "M", "female": "F", "f": "F",
	"unknown": "U", "u": "U", "other": "O", "o": "O",
}

// ruleSexStandardization rewrites free-text sex values to the NWB
// single-letter codes.
func ruleSexStandardization(snapshot map[string]string) *Suggestion {
	raw := strings.TrimSpace(snapshot["sex"])
	if raw == "" {
		return nil
	}
	normalized, ok := sexNormalization[strings.ToLower(raw)]
	if !ok || normalized == raw {
		return nil
	}

	return &Suggestion{
		Field:         "sex",
		OriginalValue: raw,
		EnrichedValue: normalized,
		Confidence:    sexStandardizeConfidence,
		Source:        "sex_standardization",
		Reasoning:     fmt.Sprintf("standardized %q to NWB sex code %q", raw, normalized),
	}
}

// recordingProtocols maps recording-type keywords to protocol hints.
var recordingProtocols = []struct {
	keyword  string
	protocol string
}{
	{"extracellular", "extracellular electrophysiology recording"},
	{"ephys", "extracellular electrophysiology recording"},
	{"patch", "whole-cell patch clamp recording"},
	{"calcium", "calcium imaging"},
	{"two-photon", "two-photon imaging"},
	{"2p", "two-photon imaging"},
	{"fmri", "functional magnetic resonance imaging"},
}

// ruleRecordingProtocol infers a protocol description from the experiment
// description's recording-type keywords.
func ruleRecordingProtocol(snapshot map[string]string) *Suggestion {
	if snapshot["protocol"] != "" {
		return nil
	}
	desc := strings.ToLower(snapshot["experiment_description"] + " " + snapshot["session_description"])
	if strings.TrimSpace(desc) == "" {
		return nil
	}

	for _, rp := range recordingProtocols {
		if strings.Contains(desc, rp.keyword) {
			return &Suggestion{
				Field:         "protocol",
				EnrichedValue: rp.protocol,
				Confidence:    protocolInferenceBase,
				Source:        "protocol_inference",
				Reasoning:     fmt.Sprintf("description mentions %q", rp.keyword),
			}
		}
	}
	return nil
}

// deviceCapabilityRule infers a device capability note via the knowledge
// graph. Unlike the pure rules it can touch the RDF store, so it lives on
// the advisor and treats query failure as no suggestion.
func (a *Advisor) deviceCapabilityRule(ctx context.Context, snapshot map[string]string) *Suggestion {
	device := strings.TrimSpace(snapshot["device"])
	if device == "" || a.graph == nil {
		return nil
	}

	results, err := a.graph.Query(ctx, fmt.Sprintf("%s capability ?", strings.ToLower(device)))
	if err != nil {
		a.log.Warnw("knowledge graph query failed, no enrichment available",
			"device", device, "error", err)
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	return &Suggestion{
		Field:         "device_capability",
		OriginalValue: device,
		EnrichedValue: results[0]["object"],
		Confidence:    deviceCapabilityBase,
		Source:        "device_capability",
		Reasoning:     fmt.Sprintf("knowledge graph lists this capability for %q", device),
	}
}
