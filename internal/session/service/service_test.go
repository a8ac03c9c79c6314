package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	sessionstore "github.com/Malcan-Technologies/creditxpress-kyc/internal/session/store"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/requestcontext"
)

type fakeIssuer struct {
	mu        sync.Mutex
	issued    map[id.SessionID]time.Time
	revoked   map[id.SessionID]bool
	failIssue bool
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{
		issued:  make(map[id.SessionID]time.Time),
		revoked: make(map[id.SessionID]bool),
	}
}

func (f *fakeIssuer) Issue(_ context.Context, sessionID id.SessionID, expiresAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failIssue {
		return "", errors.New("pairing store unavailable")
	}
	f.issued[sessionID] = expiresAt
	return "token-" + sessionID.String(), nil
}

func (f *fakeIssuer) Revoke(_ context.Context, sessionID id.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[sessionID] = true
	return nil
}

// Justification: the session service is the single owner of state
// transitions; handler tests stub it out, so transition ordering, audit
// emission and idempotent replays are verified here.
type SessionServiceSuite struct {
	suite.Suite
	store   *sessionstore.MemoryStore
	issuer  *fakeIssuer
	audits  *audit.MemoryStore
	service *Service
	owner   id.UserID
	now     time.Time
	ctx     context.Context
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.store = sessionstore.NewMemoryStore()
	s.issuer = newFakeIssuer()
	s.audits = audit.NewMemoryStore()
	s.owner = id.UserID(uuid.New())
	s.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.service = New(s.store, s.issuer,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(audit.NewPublisher(s.audits)),
		WithPairingTTL(10*time.Minute),
	)
}

func (s *SessionServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(offset))
}

func (s *SessionServiceSuite) create() *CreatedSession {
	created, err := s.service.Create(s.ctx, CreateParams{
		OwnerUserID: s.owner,
		DeviceLabel: "Chrome on Windows",
	})
	s.Require().NoError(err)
	return created
}

func (s *SessionServiceSuite) artifact(kind id.ArtifactKind) models.Artifact {
	return models.Artifact{
		ID:            id.ArtifactID(uuid.New()),
		Kind:          kind,
		StorageRef:    "sessions/blob/" + string(kind),
		ContentType:   "image/jpeg",
		SizeBytes:     2048,
		ContentSHA256: "d5c0a1",
		CapturedAt:    s.now,
	}
}

func (s *SessionServiceSuite) buildToProcessing() *models.Session {
	created := s.create()
	for _, kind := range id.RequiredArtifactKinds() {
		_, err := s.service.RecordArtifact(s.ctx, created.Session.ID, s.artifact(kind))
		s.Require().NoError(err)
	}
	session, err := s.service.Submit(s.ctx, created.Session.ID)
	s.Require().NoError(err)
	return session
}

func (s *SessionServiceSuite) auditActions(sessionID id.SessionID) []string {
	events, err := s.audits.ListBySession(context.Background(), sessionID)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, event := range events {
		actions = append(actions, event.Action)
	}
	return actions
}

func (s *SessionServiceSuite) TestCreate() {
	s.Run("issues a CREATED session with pairing deadline and token", func() {
		created := s.create()

		s.Equal(models.StatusCreated, created.Session.Status)
		s.Equal(s.owner, created.Session.OwnerUserID)
		s.Equal(s.now.Add(10*time.Minute), created.Session.PairingExpiresAt)
		s.NotEmpty(created.PairingToken)
		s.Equal(created.Session.PairingExpiresAt, s.issuer.issued[created.Session.ID])

		s.ElementsMatch(
			[]string{string(audit.EventSessionCreated), string(audit.EventPairingIssued)},
			s.auditActions(created.Session.ID),
		)
	})

	s.Run("missing owner identity is refused", func() {
		_, err := s.service.Create(s.ctx, CreateParams{})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("issuer failure surfaces as dependency error", func() {
		s.issuer.failIssue = true
		defer func() { s.issuer.failIssue = false }()

		_, err := s.service.Create(s.ctx, CreateParams{OwnerUserID: s.owner})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeDependency))
	})
}

func (s *SessionServiceSuite) TestRedo() {
	s.Run("creates a linked session and leaves the predecessor untouched", func() {
		appID := id.ApplicationID(uuid.New())
		original, err := s.service.Create(s.ctx, CreateParams{
			OwnerUserID:   s.owner,
			ApplicationID: appID,
		})
		s.Require().NoError(err)
		_, err = s.service.RecordArtifact(s.ctx, original.Session.ID, s.artifact(id.ArtifactKindFront))
		s.Require().NoError(err)

		redone, err := s.service.Redo(s.ctx, CreateParams{OwnerUserID: s.owner}, original.Session.ID)
		s.Require().NoError(err)

		s.Equal(original.Session.ID, redone.Session.PredecessorID)
		s.Equal(appID, redone.Session.ApplicationID)
		s.NotEqual(original.PairingToken, redone.PairingToken)

		predecessor, err := s.store.Get(context.Background(), original.Session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCapturing, predecessor.Status)
		s.Contains(s.auditActions(original.Session.ID), string(audit.EventSessionRedone))
	})

	s.Run("another owner's session reads as not found", func() {
		created := s.create()

		_, err := s.service.Redo(s.ctx, CreateParams{OwnerUserID: id.UserID(uuid.New())}, created.Session.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown predecessor is not found", func() {
		_, err := s.service.Redo(s.ctx, CreateParams{OwnerUserID: s.owner}, id.SessionID(uuid.New()))
		s.Require().True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *SessionServiceSuite) TestRecordArtifact() {
	s.Run("first artifact moves the session into CAPTURING", func() {
		created := s.create()

		session, err := s.service.RecordArtifact(s.ctx, created.Session.ID, s.artifact(id.ArtifactKindFront))
		s.Require().NoError(err)

		s.Equal(models.StatusCapturing, session.Status)
		s.Require().NotNil(session.ActiveArtifact(id.ArtifactKindFront))
		s.Contains(s.auditActions(created.Session.ID), string(audit.EventArtifactCaptured))
	})

	s.Run("retake supersedes the prior artifact and keeps history", func() {
		created := s.create()
		first := s.artifact(id.ArtifactKindFront)
		_, err := s.service.RecordArtifact(s.ctx, created.Session.ID, first)
		s.Require().NoError(err)

		second := s.artifact(id.ArtifactKindFront)
		session, err := s.service.RecordArtifact(s.ctx, created.Session.ID, second)
		s.Require().NoError(err)

		s.Len(session.Artifacts, 2)
		s.Equal(second.StorageRef, session.ActiveArtifact(id.ArtifactKindFront).StorageRef)
		s.NotNil(session.Artifacts[0].SupersededAt)
		s.Contains(s.auditActions(created.Session.ID), string(audit.EventArtifactSuperseded))
	})

	s.Run("capture after the pairing deadline is refused", func() {
		created := s.create()

		_, err := s.service.RecordArtifact(s.at(11*time.Minute), created.Session.ID, s.artifact(id.ArtifactKindFront))
		s.Require().True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("capture on a decided session is refused", func() {
		session := s.buildToProcessing()
		_, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeRejected})
		s.Require().NoError(err)

		_, err = s.service.RecordArtifact(s.ctx, session.ID, s.artifact(id.ArtifactKindSelfie))
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *SessionServiceSuite) TestSubmit() {
	s.Run("complete artifact set moves to PROCESSING", func() {
		session := s.buildToProcessing()

		s.Equal(models.StatusProcessing, session.Status)
		s.Require().NotNil(session.SubmittedAt)
		s.Contains(s.auditActions(session.ID), string(audit.EventSessionSubmitted))
	})

	s.Run("missing kinds are named in the validation error", func() {
		created := s.create()
		_, err := s.service.RecordArtifact(s.ctx, created.Session.ID, s.artifact(id.ArtifactKindFront))
		s.Require().NoError(err)

		_, err = s.service.Submit(s.ctx, created.Session.ID)
		s.Require().True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "selfie")
	})

	s.Run("resubmitting a processing session is a no-op", func() {
		session := s.buildToProcessing()
		submittedAt := *session.SubmittedAt

		again, err := s.service.Submit(s.at(time.Minute), session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, again.Status)
		s.Equal(submittedAt, *again.SubmittedAt)

		submitted := 0
		for _, action := range s.auditActions(session.ID) {
			if action == string(audit.EventSessionSubmitted) {
				submitted++
			}
		}
		s.Equal(1, submitted)
	})
}

func (s *SessionServiceSuite) TestApplyDecision() {
	score := func(v float64) *float64 { return &v }

	s.Run("records the outcome with evidence scores", func() {
		session := s.buildToProcessing()

		decided, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{
			Outcome:       id.OutcomeApproved,
			FaceScore:     score(0.91),
			LivenessScore: score(0.88),
		})
		s.Require().NoError(err)

		s.Equal(models.StatusApproved, decided.Status)
		s.Require().NotNil(decided.Decision)
		s.Equal(0.91, *decided.Decision.FaceScore)
		s.Contains(s.auditActions(session.ID), string(audit.EventSessionDecided))
	})

	s.Run("redelivering the same outcome never rewrites the record", func() {
		session := s.buildToProcessing()
		first, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeApproved})
		s.Require().NoError(err)

		replay, err := s.service.ApplyDecision(s.at(time.Minute), session.ID, models.Decision{
			Outcome:   id.OutcomeApproved,
			FaceScore: score(0.5),
		})
		s.Require().NoError(err)
		s.Equal(first.Decision.DecidedAt, replay.Decision.DecidedAt)
		s.Nil(replay.Decision.FaceScore)
	})

	s.Run("a different outcome on a decided session conflicts", func() {
		session := s.buildToProcessing()
		_, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeApproved})
		s.Require().NoError(err)

		_, err = s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeRejected})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("deciding a capture-phase session is refused", func() {
		created := s.create()

		_, err := s.service.ApplyDecision(s.ctx, created.Session.ID, models.Decision{Outcome: id.OutcomeApproved})
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *SessionServiceSuite) TestMarkAccepted() {
	s.Run("approved session accepts and revokes its pairing token", func() {
		session := s.buildToProcessing()
		_, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeApproved})
		s.Require().NoError(err)

		accepted, applied, err := s.service.MarkAccepted(s.ctx, session.ID, "profiles/123/kyc/1")
		s.Require().NoError(err)

		s.True(applied)
		s.Equal(models.StatusAccepted, accepted.Status)
		s.Equal("profiles/123/kyc/1", accepted.ProfileRef)
		s.Require().NotNil(accepted.AcceptedAt)
		s.True(s.issuer.revoked[session.ID])
		s.Contains(s.auditActions(session.ID), string(audit.EventSessionAccepted))
	})

	s.Run("accept replay keeps the original profile reference", func() {
		session := s.buildToProcessing()
		_, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeApproved})
		s.Require().NoError(err)
		first, applied, err := s.service.MarkAccepted(s.ctx, session.ID, "profiles/123/kyc/1")
		s.Require().NoError(err)
		s.Require().True(applied)

		replay, applied, err := s.service.MarkAccepted(s.at(time.Minute), session.ID, "profiles/123/kyc/2")
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(first.ProfileRef, replay.ProfileRef)
		s.Equal(*first.AcceptedAt, *replay.AcceptedAt)
	})

	s.Run("accepting a rejected session is refused", func() {
		session := s.buildToProcessing()
		_, err := s.service.ApplyDecision(s.ctx, session.ID, models.Decision{Outcome: id.OutcomeRejected})
		s.Require().NoError(err)

		_, _, err = s.service.MarkAccepted(s.ctx, session.ID, "profiles/123/kyc/1")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *SessionServiceSuite) TestExpireOverdue() {
	s.Run("sweeps capture-phase sessions past their deadline", func() {
		fresh := s.create()
		capturing := s.create()
		_, err := s.service.RecordArtifact(s.ctx, capturing.Session.ID, s.artifact(id.ArtifactKindFront))
		s.Require().NoError(err)
		processing := s.buildToProcessing()

		expired, err := s.service.ExpireOverdue(context.Background(), s.now.Add(11*time.Minute), 50)
		s.Require().NoError(err)
		s.Equal(2, expired)

		for _, sessionID := range []id.SessionID{fresh.Session.ID, capturing.Session.ID} {
			got, err := s.store.Get(context.Background(), sessionID)
			s.Require().NoError(err)
			s.Equal(models.StatusExpired, got.Status)
			s.True(s.issuer.revoked[sessionID])
			s.Contains(s.auditActions(sessionID), string(audit.EventSessionExpired))
		}

		untouched, err := s.store.Get(context.Background(), processing.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusProcessing, untouched.Status)
	})

	s.Run("nothing overdue sweeps nothing", func() {
		s.create()

		expired, err := s.service.ExpireOverdue(context.Background(), s.now.Add(time.Minute), 50)
		s.Require().NoError(err)
		s.Zero(expired)
	})
}
