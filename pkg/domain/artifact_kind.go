package domain

import dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"

// ArtifactKind is a domain value that identifies which capture slot an
// artifact fills. Invariant: the value must be one of the supported kinds.
//
// Usage: construct via ParseArtifactKind at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type ArtifactKind string

// Supported artifact kinds. A session needs one current artifact of each kind
// before it can move to processing.
const (
	ArtifactKindFront  ArtifactKind = "front"
	ArtifactKindBack   ArtifactKind = "back"
	ArtifactKindSelfie ArtifactKind = "selfie"
)

// validArtifactKinds is the single source of truth for valid kinds.
var validArtifactKinds = map[ArtifactKind]bool{
	ArtifactKindFront:  true,
	ArtifactKindBack:   true,
	ArtifactKindSelfie: true,
}

// RequiredArtifactKinds returns every kind a session must hold before
// submission, in display order.
func RequiredArtifactKinds() []ArtifactKind {
	return []ArtifactKind{ArtifactKindFront, ArtifactKindBack, ArtifactKindSelfie}
}

// ParseArtifactKind constructs an ArtifactKind from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported; no
// other errors are expected.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "kind cannot be empty")
	}
	k := ArtifactKind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid artifact kind")
	}
	return k, nil
}

// IsValid checks if the kind is one of the supported enum values.
func (k ArtifactKind) IsValid() bool {
	return validArtifactKinds[k]
}

// String returns the string representation of the kind.
func (k ArtifactKind) String() string {
	return string(k)
}
