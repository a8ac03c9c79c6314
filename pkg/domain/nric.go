package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// NRIC is a Malaysian national registration identity card number in canonical
// dashed form (YYMMDD-PB-GGGG). It is PII: never log or persist the raw value
// outside the OCR result payload; use Masked or Hash instead.
type NRIC string

// ParseNRIC validates an NRIC from OCR output or client input. Accepts the
// dashed form and the bare 12-digit form; returns the canonical dashed form.
func ParseNRIC(s string) (NRIC, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nric cannot be empty")
	}

	digits := strings.ReplaceAll(s, "-", "")
	if len(digits) != 12 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nric must contain 12 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "nric must contain only digits")
		}
	}

	// Birth date portion: loose range check only. Full calendar validation is
	// the registry's job; OCR noise should fail fast here though.
	month := (int(digits[2]-'0') * 10) + int(digits[3]-'0')
	day := (int(digits[4]-'0') * 10) + int(digits[5]-'0')
	if month < 1 || month > 12 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nric birth month out of range")
	}
	if day < 1 || day > 31 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "nric birth day out of range")
	}

	return NRIC(digits[0:6] + "-" + digits[6:8] + "-" + digits[8:12]), nil
}

func (n NRIC) String() string { return string(n) }

// Masked hides all but the last four digits for log and audit output.
func (n NRIC) Masked() string {
	if len(n) != 14 {
		return "******-**-****"
	}
	return "******-**-" + string(n[10:])
}

// Hash returns the SHA-256 hex digest of the canonical form, used for
// compliance traceability without storing raw PII.
func (n NRIC) Hash() string {
	sum := sha256.Sum256([]byte(n))
	return hex.EncodeToString(sum[:])
}
