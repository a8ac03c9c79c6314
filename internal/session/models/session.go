package models

import (
	"time"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// Artifact is one captured document image. Only metadata lives here; the
// payload sits in the blob store under StorageRef.
type Artifact struct {
	ID            id.ArtifactID   `json:"id"`
	Kind          id.ArtifactKind `json:"kind"`
	StorageRef    string          `json:"storage_ref"`
	ContentType   string          `json:"content_type"`
	SizeBytes     int64           `json:"size_bytes"`
	ContentSHA256 string          `json:"content_sha256"`
	DeviceLabel   string          `json:"device_label,omitempty"`
	// ViaHandoff marks artifacts captured on a different device than the
	// one that created the session.
	ViaHandoff bool      `json:"via_handoff,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
	// SupersededAt is set when a retake replaced this artifact. Superseded
	// artifacts stay in the history until retention purges their blobs.
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	// PurgedAt is set once retention deleted the blob behind StorageRef.
	PurgedAt *time.Time `json:"purged_at,omitempty"`
}

// Superseded reports whether a retake replaced this artifact.
func (a *Artifact) Superseded() bool {
	return a.SupersededAt != nil
}

// ExtractedIdentity holds the OCR output attached to a decision. The NRIC
// is stored masked plus hashed, never in full, so session rows cannot leak
// the national ID.
type ExtractedIdentity struct {
	Name       string `json:"name,omitempty"`
	NRICMasked string `json:"nric_masked,omitempty"`
	NRICHash   string `json:"nric_hash,omitempty"`
	DOB        string `json:"dob,omitempty"`
	Address    string `json:"address,omitempty"`
}

// Decision is the engine's verdict plus the evidence summary it was based on.
type Decision struct {
	Outcome       id.Outcome         `json:"outcome"`
	FaceScore     *float64           `json:"face_score,omitempty"`
	LivenessScore *float64           `json:"liveness_score,omitempty"`
	Reasons       []string           `json:"reasons,omitempty"`
	Extracted     *ExtractedIdentity `json:"extracted,omitempty"`
	DecidedAt     time.Time          `json:"decided_at"`
}

// Session is the aggregate root of one identity-verification attempt.
//
// Invariants:
//   - Status only moves along the edges in statusEdges; redo never rewinds,
//     it creates a successor session carrying PredecessorID.
//   - At most one non-superseded artifact per kind.
//   - PairingExpiresAt bounds the whole capture phase: past it, no artifact
//     or submission is accepted regardless of credential presented.
//   - ProfileRef is set exactly once, by the APPROVED → ACCEPTED transition.
//
// All mutation goes through Can*/Apply* pairs inside a store Execute
// callback so checks and writes happen under the same lock.
type Session struct {
	ID            id.SessionID     `json:"id"`
	OwnerUserID   id.UserID        `json:"owner_user_id"`
	ApplicationID id.ApplicationID `json:"application_id,omitempty"`
	// PredecessorID links a redo session to the attempt it replaces.
	PredecessorID id.SessionID `json:"predecessor_id,omitempty"`

	Status           Status    `json:"status"`
	PairingExpiresAt time.Time `json:"pairing_expires_at"`

	Artifacts []Artifact `json:"artifacts"`
	Decision  *Decision  `json:"decision,omitempty"`

	// ProfileRef is the identifier the profile collaborator returned when
	// the accepted evidence was attached.
	ProfileRef string `json:"profile_ref,omitempty"`

	CreatedDeviceLabel       string `json:"created_device_label,omitempty"`
	CreatedDeviceFingerprint string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
}

// EffectiveStatus folds the pairing deadline into the stored status:
// a CREATED or CAPTURING session past its deadline reads as EXPIRED even
// before the sweeper persists the transition. Reads stay side-effect free
// and O(1) this way.
func (s *Session) EffectiveStatus(now time.Time) Status {
	if s.Status.IsCapturePhase() && now.After(s.PairingExpiresAt) {
		return StatusExpired
	}
	return s.Status
}

// ActiveArtifact returns the current (non-superseded) artifact of the given
// kind, or nil.
func (s *Session) ActiveArtifact(kind id.ArtifactKind) *Artifact {
	for i := range s.Artifacts {
		if s.Artifacts[i].Kind == kind && !s.Artifacts[i].Superseded() {
			return &s.Artifacts[i]
		}
	}
	return nil
}

// ActiveArtifacts returns the current artifact set in capture order.
func (s *Session) ActiveArtifacts() []Artifact {
	var active []Artifact
	for _, a := range s.Artifacts {
		if !a.Superseded() {
			active = append(active, a)
		}
	}
	return active
}

// MissingKinds lists the required artifact kinds not yet captured.
func (s *Session) MissingKinds() []id.ArtifactKind {
	var missing []id.ArtifactKind
	for _, kind := range id.RequiredArtifactKinds() {
		if s.ActiveArtifact(kind) == nil {
			missing = append(missing, kind)
		}
	}
	return missing
}

// HasAllRequired reports whether every required kind has a current artifact.
func (s *Session) HasAllRequired() bool {
	return len(s.MissingKinds()) == 0
}

// CanRecordArtifact checks that the session still accepts captures.
// The deadline check comes first: an expired session fails as expired even
// when its stored status would otherwise allow capture.
func (s *Session) CanRecordArtifact(now time.Time) error {
	if s.EffectiveStatus(now) == StatusExpired {
		return dErrors.New(dErrors.CodeUnauthorized, "pairing window has expired")
	}
	if !s.Status.IsCapturePhase() {
		return dErrors.New(dErrors.CodeInvalidState, "session is not accepting artifacts")
	}
	return nil
}

// ApplyArtifact records a capture, superseding any current artifact of the
// same kind, and advances CREATED → CAPTURING on the first one.
// Call CanRecordArtifact first.
func (s *Session) ApplyArtifact(artifact Artifact, now time.Time) {
	if prior := s.ActiveArtifact(artifact.Kind); prior != nil {
		supersededAt := now
		prior.SupersededAt = &supersededAt
	}
	s.Artifacts = append(s.Artifacts, artifact)
	if s.Status == StatusCreated {
		s.Status = StatusCapturing
	}
	s.UpdatedAt = now
}

// CanSubmit checks that the session holds a complete artifact set and may
// advance to PROCESSING. Submitting an already-PROCESSING session is not an
// error; the service treats it as an idempotent no-op.
func (s *Session) CanSubmit(now time.Time) error {
	if s.Status == StatusProcessing {
		return nil
	}
	if s.EffectiveStatus(now) == StatusExpired {
		return dErrors.New(dErrors.CodeUnauthorized, "pairing window has expired")
	}
	if !s.Status.IsCapturePhase() {
		return dErrors.New(dErrors.CodeInvalidState, "session already decided")
	}
	if missing := s.MissingKinds(); len(missing) > 0 {
		msg := "missing required artifacts:"
		for _, kind := range missing {
			msg += " " + kind.String()
		}
		return dErrors.New(dErrors.CodeValidation, msg)
	}
	return nil
}

// ApplySubmit advances the session to PROCESSING. Call CanSubmit first.
func (s *Session) ApplySubmit(now time.Time) {
	if s.Status == StatusProcessing {
		return
	}
	s.Status = StatusProcessing
	submittedAt := now
	s.SubmittedAt = &submittedAt
	s.UpdatedAt = now
}

// CanApplyDecision checks that the outcome may be applied. Re-delivering
// the outcome a session already carries is allowed (idempotent redelivery);
// a different outcome on a decided session is a conflict.
func (s *Session) CanApplyDecision(outcome id.Outcome) error {
	if s.Status.IsDecided() || s.Status == StatusAccepted {
		applied := s.appliedOutcome()
		if applied == outcome {
			return nil
		}
		return dErrors.New(dErrors.CodeConflict, "session already decided")
	}
	if s.Status == StatusExpired {
		return dErrors.New(dErrors.CodeConflict, "session already decided")
	}
	if s.Status != StatusProcessing {
		return dErrors.New(dErrors.CodeInvalidState, "session has not been submitted")
	}
	return nil
}

// appliedOutcome returns the outcome already on the session, deriving it
// from status for ACCEPTED sessions (which were necessarily APPROVED).
func (s *Session) appliedOutcome() id.Outcome {
	if s.Decision != nil {
		return s.Decision.Outcome
	}
	if s.Status == StatusAccepted {
		return id.OutcomeApproved
	}
	return ""
}

// AlreadyDecided reports whether ApplyDecision would be a redelivery no-op.
func (s *Session) AlreadyDecided(outcome id.Outcome) bool {
	return (s.Status.IsDecided() || s.Status == StatusAccepted) && s.appliedOutcome() == outcome
}

// ApplyDecision records the verdict and moves the session to its decision
// status. Call CanApplyDecision first; redeliveries must be skipped by the
// caller (AlreadyDecided) so the original decision record is never
// overwritten.
func (s *Session) ApplyDecision(decision Decision, now time.Time) {
	s.Status = StatusForOutcome(decision.Outcome)
	s.Decision = &decision
	s.UpdatedAt = now
}

// CanAccept checks the finalization precondition: only APPROVED sessions
// commit. An already-ACCEPTED session is not an error; the service returns
// the previously committed result.
func (s *Session) CanAccept() error {
	if s.Status == StatusAccepted {
		return nil
	}
	if s.Status != StatusApproved {
		return dErrors.New(dErrors.CodeInvalidState, "session is not approved")
	}
	return nil
}

// ApplyAccept commits the approval. Call CanAccept first.
func (s *Session) ApplyAccept(profileRef string, now time.Time) {
	if s.Status == StatusAccepted {
		return
	}
	s.Status = StatusAccepted
	s.ProfileRef = profileRef
	acceptedAt := now
	s.AcceptedAt = &acceptedAt
	s.UpdatedAt = now
}

// CanExpire checks that the sweeper may persist the EXPIRED transition.
func (s *Session) CanExpire(now time.Time) error {
	if !s.Status.IsCapturePhase() {
		return dErrors.New(dErrors.CodeInvalidState, "session is not expirable")
	}
	if !now.After(s.PairingExpiresAt) {
		return dErrors.New(dErrors.CodeInvalidState, "pairing deadline has not passed")
	}
	return nil
}

// ApplyExpiry persists the EXPIRED status. Call CanExpire first.
func (s *Session) ApplyExpiry(now time.Time) {
	s.Status = StatusExpired
	s.UpdatedAt = now
}

// CanPurge checks that retention may strip this session's blobs. ACCEPTED
// sessions are exempt: their evidence backs the committed profile record.
func (s *Session) CanPurge() error {
	if s.Status == StatusAccepted || !s.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidState, "session is not purgeable")
	}
	return nil
}

// ApplyPurge marks every remaining blob purged and returns the storage refs
// the caller must now delete from the blob store. Superseded artifacts are
// included; their blobs outlive the retake only until retention runs. Call
// CanPurge first.
func (s *Session) ApplyPurge(now time.Time) []string {
	var refs []string
	purgedAt := now
	for i := range s.Artifacts {
		artifact := &s.Artifacts[i]
		if artifact.StorageRef == "" || artifact.PurgedAt != nil {
			continue
		}
		artifact.PurgedAt = &purgedAt
		refs = append(refs, artifact.StorageRef)
	}
	if len(refs) > 0 {
		s.UpdatedAt = now
	}
	return refs
}

// Clone returns a deep copy, so stores can hand out sessions without
// aliasing their internal state.
func (s *Session) Clone() *Session {
	clone := *s
	if s.Artifacts != nil {
		clone.Artifacts = make([]Artifact, len(s.Artifacts))
		copy(clone.Artifacts, s.Artifacts)
	}
	if s.Decision != nil {
		decision := *s.Decision
		if s.Decision.Extracted != nil {
			extracted := *s.Decision.Extracted
			decision.Extracted = &extracted
		}
		if s.Decision.Reasons != nil {
			decision.Reasons = append([]string(nil), s.Decision.Reasons...)
		}
		clone.Decision = &decision
	}
	return &clone
}
