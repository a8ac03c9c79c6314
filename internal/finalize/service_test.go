package finalize

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/authz"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/finalize/mocks"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/profile"
	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
)

// Justification: finalize coordinates three collaborators whose call order
// IS the contract (attach before accept, nothing after a refusal). Mocks
// make the absent calls assertable; the real stores are covered by their
// own suites.
type FinalizeServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	authorizer *mocks.MockAuthorizer
	sessions   *mocks.MockSessionReader
	acceptor   *mocks.MockAcceptor
	profiles   *mocks.MockProfileStore
	service    *Service
	owner      id.UserID
	sessionID  id.SessionID
	creds      authz.Credentials
}

func TestFinalizeServiceSuite(t *testing.T) {
	suite.Run(t, new(FinalizeServiceSuite))
}

func (s *FinalizeServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.authorizer = mocks.NewMockAuthorizer(s.ctrl)
	s.sessions = mocks.NewMockSessionReader(s.ctrl)
	s.acceptor = mocks.NewMockAcceptor(s.ctrl)
	s.profiles = mocks.NewMockProfileStore(s.ctrl)

	s.owner = id.NewUserID()
	s.sessionID = id.NewSessionID()
	s.creds = authz.Credentials{OwnerUserID: s.owner}

	s.service = New(s.authorizer, s.sessions, s.acceptor, s.profiles,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func (s *FinalizeServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *FinalizeServiceSuite) expectAuthorized() {
	s.authorizer.EXPECT().
		Authorize(gomock.Any(), s.sessionID, s.creds).
		Return(&authz.Principal{Kind: authz.KindOwner, UserID: s.owner, SessionID: s.sessionID}, nil)
}

func (s *FinalizeServiceSuite) approvedSession() *models.Session {
	decidedAt := time.Date(2025, 6, 1, 9, 20, 0, 0, time.UTC)
	superseded := decidedAt.Add(-10 * time.Minute)
	face := 0.92
	return &models.Session{
		ID:          s.sessionID,
		OwnerUserID: s.owner,
		Status:      models.StatusApproved,
		Artifacts: []models.Artifact{
			{Kind: id.ArtifactKindFront, StorageRef: "sessions/x/front-blurry", ContentSHA256: "dead", SupersededAt: &superseded},
			{Kind: id.ArtifactKindFront, StorageRef: "sessions/x/front", ContentSHA256: "aa11"},
			{Kind: id.ArtifactKindBack, StorageRef: "sessions/x/back", ContentSHA256: "bb22"},
			{Kind: id.ArtifactKindSelfie, StorageRef: "sessions/x/selfie", ContentSHA256: "cc33"},
		},
		Decision: &models.Decision{
			Outcome:   id.OutcomeApproved,
			FaceScore: &face,
			Extracted: &models.ExtractedIdentity{Name: "Tan Mei Ling", NRICMasked: "******-**-1234"},
			DecidedAt: decidedAt,
		},
	}
}

func (s *FinalizeServiceSuite) TestAccept() {
	s.Run("winner attaches evidence then accepts", func() {
		session := s.approvedSession()
		accepted := *session
		accepted.Status = models.StatusAccepted
		accepted.ProfileRef = "ref-1"

		s.expectAuthorized()
		s.sessions.EXPECT().Get(gomock.Any(), s.sessionID).Return(session, nil)
		s.profiles.EXPECT().
			Attach(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, attachment profile.Attachment) (string, error) {
				s.Equal(s.sessionID, attachment.SessionID)
				s.Equal(s.owner, attachment.UserID)
				s.Equal(id.OutcomeApproved, attachment.Outcome)
				s.Equal("Tan Mei Ling", attachment.Extracted.Name)
				// Only the active set travels; the superseded front does not.
				s.Len(attachment.Evidence, 3)
				for _, ref := range attachment.Evidence {
					s.NotEqual("sessions/x/front-blurry", ref.StorageRef)
				}
				return "ref-1", nil
			})
		s.acceptor.EXPECT().
			MarkAccepted(gomock.Any(), s.sessionID, "ref-1").
			Return(&accepted, true, nil)

		result, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().NoError(err)
		s.True(result.Applied)
		s.Equal("ref-1", result.ProfileRef)
		s.Equal(models.StatusAccepted, result.Session.Status)
	})

	s.Run("replay returns the original ref without touching the profile", func() {
		session := s.approvedSession()
		session.Status = models.StatusAccepted
		session.ProfileRef = "ref-1"

		s.expectAuthorized()
		s.sessions.EXPECT().Get(gomock.Any(), s.sessionID).Return(session, nil)

		result, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().NoError(err)
		s.False(result.Applied)
		s.Equal("ref-1", result.ProfileRef)
	})

	s.Run("raced accept loses gracefully with the winner's ref", func() {
		session := s.approvedSession()
		accepted := *session
		accepted.Status = models.StatusAccepted
		accepted.ProfileRef = "ref-1"

		s.expectAuthorized()
		s.sessions.EXPECT().Get(gomock.Any(), s.sessionID).Return(session, nil)
		s.profiles.EXPECT().Attach(gomock.Any(), gomock.Any()).Return("ref-1", nil)
		s.acceptor.EXPECT().
			MarkAccepted(gomock.Any(), s.sessionID, "ref-1").
			Return(&accepted, false, nil)

		result, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().NoError(err)
		s.False(result.Applied)
		s.Equal("ref-1", result.ProfileRef)
	})

	s.Run("unapproved session is refused before any attach", func() {
		session := s.approvedSession()
		session.Status = models.StatusProcessing
		session.Decision = nil

		s.expectAuthorized()
		s.sessions.EXPECT().Get(gomock.Any(), s.sessionID).Return(session, nil)

		_, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("profile outage leaves the session approved", func() {
		session := s.approvedSession()

		s.expectAuthorized()
		s.sessions.EXPECT().Get(gomock.Any(), s.sessionID).Return(session, nil)
		s.profiles.EXPECT().
			Attach(gomock.Any(), gomock.Any()).
			Return("", errors.New("profile database unavailable"))

		_, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDependency))
	})

	s.Run("authorization failure short-circuits", func() {
		s.authorizer.EXPECT().
			Authorize(gomock.Any(), s.sessionID, s.creds).
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "pairing token has expired, restart verification"))

		_, err := s.service.Accept(context.Background(), s.sessionID, s.creds)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}
