// Package nwbinspector consumes NWB Inspector issue reports and derives
// the schema fields a negotiation session should ask about.
package nwbinspector

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/Python-AI-Solutions/agentic-neurodata-conversion-sub005/internal/schema"
)

// Issue is one inspector finding, as emitted by the inspector's JSON report.
type Issue struct {
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	Location  string `json:"location,omitempty"`
	CheckName string `json:"check_name,omitempty"`
}

type report struct {
	Issues []Issue `json:"issues"`
}

// LoadIssues reads an inspector report from disk. Both the wrapped form
// {"issues": [...]} and a bare issue array are accepted.
func LoadIssues(path string) ([]Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inspector report: %w", err)
	}

	var wrapped report
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Issues != nil {
		return wrapped.Issues, nil
	}

	var bare []Issue
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("parse inspector report %s: %w", path, err)
	}
	return bare, nil
}

// MissingFields maps issue messages to schema field names by keyword match
// against canonical names and aliases. Each field is reported once, in
// registry declaration order, so downstream planning stays deterministic.
func MissingFields(issues []Issue, registry *schema.Registry) []string {
	mentioned := make(map[string]bool)
	for _, issue := range issues {
		tokens := tokenize(issue.Message + " " + issue.CheckName + " " + issue.Location)
		for _, f := range registry.All() {
			if mentioned[f.Name] {
				continue
			}
			if fieldMentioned(tokens, f) {
				mentioned[f.Name] = true
			}
		}
	}

	var missing []string
	for _, f := range registry.All() {
		if mentioned[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// fieldMentioned reports whether the issue text names the field under any of
// its spellings. Matching is on token boundaries, so the "pi" alias does not
// fire inside "pipeline".
func fieldMentioned(tokens []string, f schema.SchemaField) bool {
	names := append([]string{f.Name}, f.Aliases...)
	for _, name := range names {
		if matchPhrase(tokens, tokenize(name)) {
			return true
		}
	}
	return false
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// so session_description and "session description" produce the same tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchPhrase reports whether phrase occurs as a contiguous token run.
func matchPhrase(tokens, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return false
	}
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, w := range phrase {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
