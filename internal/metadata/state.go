package metadata

// Mode tracks whether the user has been asked for metadata this session and
// how they responded. Once a session reaches ModeUserDeclined or
// ModeProceedingMinimal it never asks again; the user's decision to stop
// being asked is durable for the remainder of the session.
type Mode string

const (
	ModeNotAsked          Mode = "not_asked"
	ModeAskedOnce         Mode = "asked_once"
	ModeUserDeclined      Mode = "user_declined"
	ModeProceedingMinimal Mode = "proceeding_minimal"
)

// Phase is the requirement tier the negotiation is currently working through.
type Phase string

const (
	PhaseCritical    Phase = "critical"
	PhaseRecommended Phase = "recommended"
	PhaseOptional    Phase = "optional"
	PhaseDone        Phase = "done"
)

// NegotiationState is the per-session mutable state of the negotiation.
// Invariant: Confirmed and Pending keys are disjoint at the start of every
// turn; Commit always clears the corresponding pending entry.
type NegotiationState struct {
	Confirmed map[string]ConfirmedValue
	Pending   map[string]CandidateValue
	Declined  map[string]bool

	Mode                 Mode
	SequentialPreference bool
	CurrentPhase         Phase

	// AskRounds counts completed proactive ask rounds, checked against the
	// session's request budget before asking again.
	AskRounds int
}

// NewNegotiationState creates an empty state for a fresh session.
func NewNegotiationState() *NegotiationState {
	return &NegotiationState{
		Confirmed:    make(map[string]ConfirmedValue),
		Pending:      make(map[string]CandidateValue),
		Declined:     make(map[string]bool),
		Mode:         ModeNotAsked,
		CurrentPhase: PhaseCritical,
	}
}

// Commit stores a confirmed value and clears any pending entry for the same
// field, preserving the confirmed/pending disjointness invariant.
func (s *NegotiationState) Commit(cv ConfirmedValue) {
	s.Confirmed[cv.FieldName] = cv
	delete(s.Pending, cv.FieldName)
}

// MergePending adds candidates to the pending map. Entries for fields already
// pending are replaced; pending entries for other fields are kept open. A
// candidate for an already-confirmed field supersedes the confirmed value,
// which is removed until the new candidate is resolved, keeping Confirmed and
// Pending disjoint.
func (s *NegotiationState) MergePending(candidates []CandidateValue) {
	for _, c := range candidates {
		s.Pending[c.FieldName] = c
		delete(s.Confirmed, c.FieldName)
	}
}

// ClearPending discards all pending candidates.
func (s *NegotiationState) ClearPending() {
	s.Pending = make(map[string]CandidateValue)
}

// Decline marks fields as declined; declined fields are never asked about
// again. Idempotent.
func (s *NegotiationState) Decline(fields ...string) {
	for _, f := range fields {
		s.Declined[f] = true
	}
}

// IsDeclined reports whether the user declined the field.
func (s *NegotiationState) IsDeclined(field string) bool {
	return s.Declined[field]
}

// IsResolved reports whether the field needs no further prompting: it is
// either confirmed or declined.
func (s *NegotiationState) IsResolved(field string) bool {
	if _, ok := s.Confirmed[field]; ok {
		return true
	}
	return s.Declined[field]
}

// Snapshot returns a copy of the confirmed map for report generation.
func (s *NegotiationState) Snapshot() map[string]ConfirmedValue {
	out := make(map[string]ConfirmedValue, len(s.Confirmed))
	for k, v := range s.Confirmed {
		out[k] = v
	}
	return out
}

// Values returns the confirmed values as a flat field->value map, the shape
// the enrichment advisor consumes.
func (s *NegotiationState) Values() map[string]string {
	out := make(map[string]string, len(s.Confirmed))
	for k, v := range s.Confirmed {
		out[k] = v.Value
	}
	return out
}
