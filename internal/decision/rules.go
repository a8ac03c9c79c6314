package decision

import (
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/decision/engine"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

// Score thresholds. A score within ReviewMargin below its threshold is a
// near miss: not good enough to approve, too close to throw away.
const (
	FaceMatchThreshold = 0.75
	LivenessThreshold  = 0.85
	ReviewMargin       = 0.10
)

// Reason strings recorded on the decision. Stable: reviewers and the loan
// platform key off them.
const (
	ReasonAllChecksPassed        = "all_checks_passed"
	ReasonNRICInvalid            = "nric_invalid"
	ReasonDocumentIncomplete     = "document_incomplete"
	ReasonFaceBelowThreshold     = "face_match_below_threshold"
	ReasonFaceNearThreshold      = "face_match_near_threshold"
	ReasonLivenessBelowThreshold = "liveness_below_threshold"
	ReasonLivenessNearThreshold  = "liveness_near_threshold"
)

// Verdict is the rules' output: an outcome, the reasons behind it, and the
// identity read that may be persisted (NRIC already masked and hashed; the
// raw number never leaves this function).
type Verdict struct {
	Outcome   id.Outcome
	Reasons   []string
	Extracted *models.ExtractedIdentity
}

type checkResult int

const (
	checkFail checkResult = iota
	checkNear
	checkPass
)

func classify(score, threshold float64) checkResult {
	switch {
	case score >= threshold:
		return checkPass
	case score >= threshold-ReviewMargin:
		return checkNear
	default:
		return checkFail
	}
}

// EvaluateRules applies the verification rule chain. Pure domain logic,
// no I/O.
//
// Rule priority:
//  1. Document read: the NRIC must parse and name and date of birth must
//     be present. A failed read rejects outright; there is no review band
//     for an unreadable document.
//  2. Face match against FaceMatchThreshold.
//  3. Liveness against LivenessThreshold.
//
// When the document reads and every score is at least within ReviewMargin
// of its threshold, with at least one short of passing, the session goes
// to MANUAL_REVIEW instead of REJECTED.
func EvaluateRules(evidence *Evidence) Verdict {
	extraction := evidence.Extraction

	nric, nricErr := id.ParseNRIC(extraction.ICNumber)
	docOK := nricErr == nil && extraction.Name != "" && extraction.DOB != ""

	face := classify(evidence.FaceScore, FaceMatchThreshold)
	live := classify(evidence.LivenessScore, LivenessThreshold)

	verdict := Verdict{Extracted: buildExtracted(extraction, nric, nricErr == nil)}

	if docOK && face == checkPass && live == checkPass {
		verdict.Outcome = id.OutcomeApproved
		verdict.Reasons = []string{ReasonAllChecksPassed}
		return verdict
	}

	if docOK && face >= checkNear && live >= checkNear {
		verdict.Outcome = id.OutcomeManualReview
		if face == checkNear {
			verdict.Reasons = append(verdict.Reasons, ReasonFaceNearThreshold)
		}
		if live == checkNear {
			verdict.Reasons = append(verdict.Reasons, ReasonLivenessNearThreshold)
		}
		return verdict
	}

	verdict.Outcome = id.OutcomeRejected
	if nricErr != nil {
		verdict.Reasons = append(verdict.Reasons, ReasonNRICInvalid)
	} else if extraction.Name == "" || extraction.DOB == "" {
		verdict.Reasons = append(verdict.Reasons, ReasonDocumentIncomplete)
	}
	if face == checkFail {
		verdict.Reasons = append(verdict.Reasons, ReasonFaceBelowThreshold)
	}
	if live == checkFail {
		verdict.Reasons = append(verdict.Reasons, ReasonLivenessBelowThreshold)
	}
	return verdict
}

// buildExtracted shapes the OCR read for persistence. The raw NRIC
// survives only as mask and hash; name, birth date and address ride
// through for the reviewer screen.
func buildExtracted(extraction *engine.Extraction, nric id.NRIC, nricOK bool) *models.ExtractedIdentity {
	out := &models.ExtractedIdentity{
		Name:    extraction.Name,
		DOB:     extraction.DOB,
		Address: extraction.Address,
	}
	if nricOK {
		out.NRICMasked = nric.Masked()
		out.NRICHash = nric.Hash()
	}
	return out
}
