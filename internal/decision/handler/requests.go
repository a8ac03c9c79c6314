package handler

import (
	"strings"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	platformstrings "github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/strings"
)

// ExtractedPayload is the engine's document read. ICNumber arrives raw and
// is reduced to mask and hash during validation; the raw value is never
// persisted.
type ExtractedPayload struct {
	Name     string `json:"name"`
	ICNumber string `json:"ic_number"`
	DOB      string `json:"dob"`
	Address  string `json:"address"`
}

// DecisionRequest is the callback payload from an out-of-process engine.
type DecisionRequest struct {
	Outcome       string            `json:"outcome"`
	FaceScore     *float64          `json:"face_score"`
	LivenessScore *float64          `json:"liveness_score"`
	Reasons       []string          `json:"reasons"`
	Extracted     *ExtractedPayload `json:"extracted"`

	parsedOutcome   id.Outcome
	parsedExtracted *models.ExtractedIdentity
}

// Validate checks the payload and prepares the parsed fields.
func (r *DecisionRequest) Validate() error {
	outcome, err := id.ParseOutcome(strings.TrimSpace(r.Outcome))
	if err != nil {
		return err
	}
	r.parsedOutcome = outcome

	// Engine reason strings share the decision record with the in-process
	// vocabulary, which is lowercase throughout.
	r.Reasons = platformstrings.DedupeAndTrimLower(r.Reasons)

	for name, score := range map[string]*float64{
		"face_score":     r.FaceScore,
		"liveness_score": r.LivenessScore,
	} {
		if score != nil && (*score < 0 || *score > 1) {
			return dErrors.New(dErrors.CodeValidation, name+" must be between 0 and 1")
		}
	}

	if r.Extracted != nil {
		extracted := &models.ExtractedIdentity{
			Name:    strings.TrimSpace(r.Extracted.Name),
			DOB:     strings.TrimSpace(r.Extracted.DOB),
			Address: strings.TrimSpace(r.Extracted.Address),
		}
		if raw := strings.TrimSpace(r.Extracted.ICNumber); raw != "" {
			nric, err := id.ParseNRIC(raw)
			if err != nil {
				return err
			}
			extracted.NRICMasked = nric.Masked()
			extracted.NRICHash = nric.Hash()
		}
		r.parsedExtracted = extracted
	}
	return nil
}

// ParsedOutcome returns the validated outcome.
func (r *DecisionRequest) ParsedOutcome() id.Outcome {
	return r.parsedOutcome
}

// ParsedExtracted returns the masked identity read, or nil when the engine
// sent none.
func (r *DecisionRequest) ParsedExtracted() *models.ExtractedIdentity {
	return r.parsedExtracted
}
