package metadata

// Provenance records how a confirmed value entered the metadata set.
// AI_PARSED and AI_INFERRED are deliberately distinct: the first means the
// user stated the value and the system only normalized it, the second means
// the system deduced it. Review UX depends on the distinction, so these are
// never collapsed into a single "AI" tag.
type Provenance string

const (
	ProvenanceUserSpecified Provenance = "user_specified"
	ProvenanceFileExtracted Provenance = "file_extracted"
	ProvenanceAIParsed      Provenance = "ai_parsed"
	ProvenanceAIInferred    Provenance = "ai_inferred"
	ProvenanceSchemaDefault Provenance = "schema_default"
	ProvenanceSystemDefault Provenance = "system_default"
)

// Label returns a human-readable label for report rendering.
func (p Provenance) Label() string {
	switch p {
	case ProvenanceUserSpecified:
		return "user-specified"
	case ProvenanceFileExtracted:
		return "extracted from file"
	case ProvenanceAIParsed:
		return "AI-parsed (stated by user)"
	case ProvenanceAIInferred:
		return "AI-inferred (deduced)"
	case ProvenanceSchemaDefault:
		return "schema default"
	case ProvenanceSystemDefault:
		return "system default"
	default:
		return string(p)
	}
}
