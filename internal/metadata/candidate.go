package metadata

import "time"

// CandidateValue is one parse or enrichment result awaiting confirmation.
// It lives in the pending map until confirmed, edited, or superseded.
type CandidateValue struct {
	FieldName       string   `json:"field_name"`
	RawInput        string   `json:"raw_input"`        // verbatim user text
	NormalizedValue string   `json:"normalized_value"` // typed, schema-compliant
	Confidence      int      `json:"confidence"`       // 0-100
	Reasoning       string   `json:"reasoning"`
	WasExplicit     bool     `json:"was_explicit"` // user stated it vs system inferred it
	NeedsReview     bool     `json:"needs_review"`
	Alternatives    []string `json:"alternatives,omitempty"` // other plausible normalized values
}

// ConfirmedValue is the committed value for a field. A field holds at most
// one ConfirmedValue; later confirmations overwrite earlier ones.
type ConfirmedValue struct {
	FieldName         string     `json:"field_name"`
	Value             string     `json:"value"`
	Provenance        Provenance `json:"provenance"`
	Confidence        int        `json:"confidence"`
	SourceDescription string     `json:"source_description,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
	NeedsReview       bool       `json:"needs_review"`
}

// Warning is an entry in the metadata warnings side-table, recorded for
// low-confidence auto-applied values. Stronger than the inline best-guess
// note: it must surface distinctly in every generated report.
type Warning struct {
	FieldName string `json:"field_name"`
	RawInput  string `json:"raw_input"`
	Message   string `json:"message"`
}

// Warnings is the append-only side-table of review warnings.
type Warnings struct {
	entries []Warning
}

// Add appends a warning for the given field.
func (w *Warnings) Add(field, rawInput, message string) {
	w.entries = append(w.entries, Warning{FieldName: field, RawInput: rawInput, Message: message})
}

// Entries returns a copy of the recorded warnings in insertion order.
func (w *Warnings) Entries() []Warning {
	out := make([]Warning, len(w.entries))
	copy(out, w.entries)
	return out
}

// Len returns the number of recorded warnings.
func (w *Warnings) Len() int {
	return len(w.entries)
}

// Has reports whether any warning was recorded for the field.
func (w *Warnings) Has(field string) bool {
	for _, e := range w.entries {
		if e.FieldName == field {
			return true
		}
	}
	return false
}
