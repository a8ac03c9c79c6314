package models

import id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"

// Status is the lifecycle state of a KYC session. Transitions only move
// forward; a "redo" is a brand-new session linked to its predecessor, never
// a rewind.
type Status string

const (
	// StatusCreated: session exists, no artifacts yet. The pairing token is
	// live and the capture URL can be handed off.
	StatusCreated Status = "CREATED"
	// StatusCapturing: at least one artifact recorded; retakes allowed.
	StatusCapturing Status = "CAPTURING"
	// StatusProcessing: applicant submitted a complete artifact set; the
	// decision engine owns the session until it delivers an outcome.
	StatusProcessing Status = "PROCESSING"

	// Decision statuses. Terminal for the capture phase.
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusManualReview Status = "MANUAL_REVIEW"
	StatusFailed       Status = "FAILED"

	// StatusExpired: the pairing deadline passed before submission.
	StatusExpired Status = "EXPIRED"
	// StatusAccepted: the approved result was committed to the applicant's
	// profile. Terminal for the whole lifecycle.
	StatusAccepted Status = "ACCEPTED"
)

var validStatuses = map[Status]bool{
	StatusCreated:      true,
	StatusCapturing:    true,
	StatusProcessing:   true,
	StatusApproved:     true,
	StatusRejected:     true,
	StatusManualReview: true,
	StatusFailed:       true,
	StatusExpired:      true,
	StatusAccepted:     true,
}

// statusEdges defines the forward transitions of the lifecycle. Re-entrant
// capture (CAPTURING → CAPTURING on retake) does not change status, so it
// is not an edge.
var statusEdges = map[Status][]Status{
	StatusCreated:    {StatusCapturing, StatusExpired},
	StatusCapturing:  {StatusProcessing, StatusExpired},
	StatusProcessing: {StatusApproved, StatusRejected, StatusManualReview, StatusFailed},
	StatusApproved:   {StatusAccepted},
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusEdges[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsCapturePhase reports whether the session still accepts artifacts.
func (s Status) IsCapturePhase() bool {
	return s == StatusCreated || s == StatusCapturing
}

// IsDecided reports whether the decision engine has delivered an outcome.
func (s Status) IsDecided() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusManualReview, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether capture activity is over for good. ACCEPTED is
// additionally terminal for the whole lifecycle.
func (s Status) IsTerminal() bool {
	return s.IsDecided() || s == StatusExpired || s == StatusAccepted
}

// StatusForOutcome maps an engine outcome onto the decision status it
// produces. Outcome literals deliberately match status literals, but the
// indirection keeps the two vocabularies separate at compile time.
func StatusForOutcome(o id.Outcome) Status {
	switch o {
	case id.OutcomeApproved:
		return StatusApproved
	case id.OutcomeRejected:
		return StatusRejected
	case id.OutcomeManualReview:
		return StatusManualReview
	case id.OutcomeFailed:
		return StatusFailed
	default:
		return ""
	}
}
