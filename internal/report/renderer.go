package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Renderer writes reports in the supported output formats.
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer. The footer can be disabled for embedding
// the Markdown output in other documents.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON.
func (r *Renderer) RenderJSON(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the report as a Markdown document with a field
// table, confidence markers, and a dedicated warnings section.
func (r *Renderer) RenderMarkdown(report *Report, path string) error {
	if err := os.WriteFile(path, []byte(r.Markdown(report)), 0o644); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

// Markdown renders the report body.
func (r *Renderer) Markdown(report *Report) string {
	var b strings.Builder

	b.WriteString("# NWB Metadata Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	if report.SessionID != "" {
		fmt.Fprintf(&b, "Session: `%s`\n\n", report.SessionID)
	}

	b.WriteString("## Fields\n\n")
	b.WriteString("| Field | Value | Provenance | Confidence |\n")
	b.WriteString("|-------|-------|------------|------------|\n")
	for _, f := range report.Fields {
		marker := bandMarker(string(f.Band))
		review := ""
		if f.NeedsReview {
			review = " (review)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s %d%s |\n",
			f.Name, f.Value, f.Provenance.Label(), marker, f.Confidence, review)
	}
	b.WriteString("\n")

	if len(report.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		b.WriteString("The following values were auto-applied with low confidence. Please review before submission.\n\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- **%s**: %s (input was %q)\n", w.FieldName, w.Message, w.RawInput)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**%d** fields confirmed, **%d** inferred, **%d** needing review.\n",
		report.Stats.Confirmed, report.Stats.Inferred, report.Stats.NeedsReview)

	if r.includeFooter {
		b.WriteString("\n---\n*Generated by nwb-assistant. Provenance: AI-parsed values were stated by the user; AI-inferred values were deduced and should be checked.*\n")
	}
	return b.String()
}

// RenderSummary writes the terminal summary.
func (r *Renderer) RenderSummary(w io.Writer, report *Report) {
	fmt.Fprintf(w, "Metadata: %d field(s) confirmed\n", report.Stats.Confirmed)
	for _, f := range report.Fields {
		fmt.Fprintf(w, "  %s %-22s %-30s [%s, %d]\n",
			bandMarker(string(f.Band)), f.Name, truncate(f.Value, 30), f.Provenance.Label(), f.Confidence)
	}
	if len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\n%d warning(s), please review before submission:\n", len(report.Warnings))
		for _, warn := range report.Warnings {
			fmt.Fprintf(w, "  ! %s: %s\n", warn.FieldName, warn.Message)
		}
	}
}

// bandMarker is the single-character confidence indicator used in tables.
func bandMarker(band string) string {
	switch band {
	case "high":
		return "✓"
	case "medium":
		return "~"
	default:
		return "!"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
