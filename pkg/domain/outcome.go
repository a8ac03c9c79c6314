package domain

import dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"

// Outcome is the verdict the decision engine delivers for a session after
// processing. It is distinct from session status: an outcome is applied once
// and maps onto exactly one decision status.
type Outcome string

const (
	// OutcomeApproved: evidence passed all checks; the session becomes
	// finalizable.
	OutcomeApproved Outcome = "APPROVED"
	// OutcomeRejected: evidence failed a hard check.
	OutcomeRejected Outcome = "REJECTED"
	// OutcomeManualReview: evidence is inconclusive; a human decides
	// out-of-band. Terminal for this session either way.
	OutcomeManualReview Outcome = "MANUAL_REVIEW"
	// OutcomeFailed: processing could not complete (unreadable artifacts,
	// engine-side fault). The applicant starts over with a new session.
	OutcomeFailed Outcome = "FAILED"
)

var validOutcomes = map[Outcome]bool{
	OutcomeApproved:     true,
	OutcomeRejected:     true,
	OutcomeManualReview: true,
	OutcomeFailed:       true,
}

// ParseOutcome constructs an Outcome from external input (engine callbacks).
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseOutcome(s string) (Outcome, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "outcome cannot be empty")
	}
	o := Outcome(s)
	if !o.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid outcome")
	}
	return o, nil
}

// IsValid checks if the outcome is one of the supported enum values.
func (o Outcome) IsValid() bool {
	return validOutcomes[o]
}

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}
