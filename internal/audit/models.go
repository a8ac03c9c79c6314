package audit

import (
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and downstream routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// Verification outcomes and evidence destruction land here; regulators
	// can ask for them years later.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to abuse monitoring:
	// rejected pairing tokens, expired sessions, credential misuse.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine lifecycle events useful for
	// debugging and support tooling.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	SessionID   id.SessionID
	UserID      id.UserID
	Action      string
	Decision    string // verification outcome, for session_decided
	Reason      string
	RequestID   string
	ClientIP    string
	DeviceLabel string
}

type AuditEvent string

const (
	// Session lifecycle
	EventSessionCreated   AuditEvent = "session_created"
	EventSessionSubmitted AuditEvent = "session_submitted"
	EventSessionDecided   AuditEvent = "session_decided"
	EventSessionAccepted  AuditEvent = "session_accepted"
	EventSessionExpired   AuditEvent = "session_expired"
	EventSessionRedone    AuditEvent = "session_redone"

	// Capture and pairing
	EventPairingIssued      AuditEvent = "pairing_issued"
	EventPairingRejected    AuditEvent = "pairing_rejected"
	EventArtifactCaptured   AuditEvent = "artifact_captured"
	EventArtifactSuperseded AuditEvent = "artifact_superseded"

	// Retention
	EventArtifactPurged AuditEvent = "artifact_purged"
)

// eventCategories maps each audit event to its category.
var eventCategories = map[AuditEvent]EventCategory{
	// Compliance events, these back the verification decision trail
	EventSessionDecided:  CategoryCompliance,
	EventSessionAccepted: CategoryCompliance,
	EventArtifactPurged:  CategoryCompliance,

	// Security events
	EventPairingRejected: CategorySecurity,
	EventSessionExpired:  CategorySecurity,

	// Operations events
	EventSessionCreated:     CategoryOperations,
	EventSessionSubmitted:   CategoryOperations,
	EventSessionRedone:      CategoryOperations,
	EventPairingIssued:      CategoryOperations,
	EventArtifactCaptured:   CategoryOperations,
	EventArtifactSuperseded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
