// Package domain defines the typed identifiers and shared value types of the
// KYC engine.
//
// Every entity ID is a distinct uuid.UUID newtype so the compiler rejects
// cross-wiring (e.g. passing a user ID where a session ID is expected).
// ParseXxxID functions validate untrusted input at trust boundaries and return
// domain errors suitable for direct HTTP translation.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// SessionID identifies a verification session.
type SessionID uuid.UUID

// NewSessionID generates a random session ID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// ParseSessionID parses and validates a session ID from untrusted input.
// Rejects empty strings, malformed UUIDs, and the nil UUID.
func ParseSessionID(s string) (SessionID, error) {
	parsed, err := parseUUID(s, "session_id")
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(parsed), nil
}

func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) String() string { return uuid.UUID(id).String() }

// UserID identifies the applicant who owns a verification session. Issued and
// authenticated by the loan platform; this service only carries it.
type UserID uuid.UUID

// NewUserID generates a random user ID. Production user IDs arrive inside
// validated access tokens; this constructor exists for workers and tests.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID parses and validates a user ID from untrusted input.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s, "user_id")
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id UserID) String() string { return uuid.UUID(id).String() }

// ApplicationID identifies the loan application a session verifies identity
// for. Optional: sessions can be started before an application exists.
type ApplicationID uuid.UUID

// ParseApplicationID parses and validates an application ID from untrusted input.
func ParseApplicationID(s string) (ApplicationID, error) {
	parsed, err := parseUUID(s, "application_id")
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(parsed), nil
}

func (id ApplicationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) String() string { return uuid.UUID(id).String() }

// ArtifactID identifies a single captured artifact (one upload). Retakes get
// fresh IDs; the superseded artifact keeps its own.
type ArtifactID uuid.UUID

// NewArtifactID generates a random artifact ID.
func NewArtifactID() ArtifactID { return ArtifactID(uuid.New()) }

// ParseArtifactID parses and validates an artifact ID from untrusted input.
func ParseArtifactID(s string) (ArtifactID, error) {
	parsed, err := parseUUID(s, "artifact_id")
	if err != nil {
		return ArtifactID{}, err
	}
	return ArtifactID(parsed), nil
}

func (id ArtifactID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ArtifactID) String() string { return uuid.UUID(id).String() }

// parseUUID is the single validation path for all ID types so they reject
// input identically at every trust boundary.
func parseUUID(s, field string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be the nil UUID")
	}
	return parsed, nil
}
