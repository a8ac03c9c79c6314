package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// Justification: store invariants (not-found, duplicate-create, copy-on-read,
// validate-abort and concurrent Execute) are exercised here because feature
// tests run against the Store interface and never probe persistence semantics.
type SessionStoreSuite struct {
	suite.Suite
	store *MemoryStore
}

func (s *SessionStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) newSession(status models.Status) *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:               id.SessionID(uuid.New()),
		OwnerUserID:      id.UserID(uuid.New()),
		Status:           status,
		PairingExpiresAt: now.Add(10 * time.Minute),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *SessionStoreSuite) TestCreateAndGet() {
	s.Run("returns stored session when found", func() {
		session := s.newSession(models.StatusCreated)
		s.Require().NoError(s.store.Create(context.Background(), session))

		found, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Equal(session, found)
	})

	s.Run("returns ErrNotFound when session does not exist", func() {
		_, err := s.store.Get(context.Background(), id.SessionID(uuid.New()))
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("creating the same session twice returns ErrConflict", func() {
		session := s.newSession(models.StatusCreated)
		s.Require().NoError(s.store.Create(context.Background(), session))

		err := s.store.Create(context.Background(), session)
		s.Require().ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("mutating a returned session does not leak into the store", func() {
		session := s.newSession(models.StatusCreated)
		s.Require().NoError(s.store.Create(context.Background(), session))

		found, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		found.Status = models.StatusFailed
		found.Artifacts = append(found.Artifacts, models.Artifact{Kind: id.ArtifactKindSelfie})

		again, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCreated, again.Status)
		s.Empty(again.Artifacts)
	})
}

func (s *SessionStoreSuite) TestExecute() {
	s.Run("applies mutation and returns updated copy", func() {
		session := s.newSession(models.StatusCreated)
		s.Require().NoError(s.store.Create(context.Background(), session))

		updated, err := s.store.Execute(context.Background(), session.ID,
			func(current *models.Session) error { return current.CanSubmit(time.Now()) },
			func(current *models.Session) {},
		)
		s.Require().Error(err) // CREATED has no artifacts, submit must refuse
		s.Nil(updated)

		updated, err = s.store.Execute(context.Background(), session.ID,
			func(*models.Session) error { return nil },
			func(current *models.Session) { current.Status = models.StatusCapturing },
		)
		s.Require().NoError(err)
		s.Equal(models.StatusCapturing, updated.Status)

		found, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCapturing, found.Status)
	})

	s.Run("validate failure leaves the stored session untouched", func() {
		session := s.newSession(models.StatusCreated)
		s.Require().NoError(s.store.Create(context.Background(), session))

		wantErr := sentinel.ErrInvalidState
		_, err := s.store.Execute(context.Background(), session.ID,
			func(*models.Session) error { return wantErr },
			func(current *models.Session) { current.Status = models.StatusFailed },
		)
		s.Require().ErrorIs(err, wantErr)

		found, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusCreated, found.Status)
	})

	s.Run("unknown session returns ErrNotFound", func() {
		_, err := s.store.Execute(context.Background(), id.SessionID(uuid.New()),
			func(*models.Session) error { return nil },
			func(*models.Session) {},
		)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent artifact recordings are both reflected", func() {
		session := s.newSession(models.StatusCapturing)
		s.Require().NoError(s.store.Create(context.Background(), session))

		record := func(kind id.ArtifactKind) {
			_, err := s.store.Execute(context.Background(), session.ID,
				func(*models.Session) error { return nil },
				func(current *models.Session) {
					current.ApplyArtifact(models.Artifact{
						ID:         id.ArtifactID(uuid.New()),
						Kind:       kind,
						StorageRef: "blob/" + string(kind),
						CapturedAt: time.Now().UTC(),
					}, time.Now().UTC())
				},
			)
			s.Require().NoError(err)
		}

		var wg sync.WaitGroup
		for _, kind := range id.RequiredArtifactKinds() {
			wg.Add(1)
			go func(kind id.ArtifactKind) {
				defer wg.Done()
				record(kind)
			}(kind)
		}
		wg.Wait()

		found, err := s.store.Get(context.Background(), session.ID)
		s.Require().NoError(err)
		s.Len(found.Artifacts, 3)
		s.True(found.HasAllRequired())
	})
}

func (s *SessionStoreSuite) TestListByStatus() {
	processing := s.newSession(models.StatusProcessing)
	created := s.newSession(models.StatusCreated)
	s.Require().NoError(s.store.Create(context.Background(), processing))
	s.Require().NoError(s.store.Create(context.Background(), created))

	got, err := s.store.ListByStatus(context.Background(), models.StatusProcessing, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(processing.ID, got[0].ID)
}

func (s *SessionStoreSuite) TestListExpirable() {
	now := time.Now().UTC()

	overdue := s.newSession(models.StatusCapturing)
	overdue.PairingExpiresAt = now.Add(-time.Minute)
	live := s.newSession(models.StatusCapturing)
	decided := s.newSession(models.StatusApproved)
	decided.PairingExpiresAt = now.Add(-time.Hour)

	for _, session := range []*models.Session{overdue, live, decided} {
		s.Require().NoError(s.store.Create(context.Background(), session))
	}

	got, err := s.store.ListExpirable(context.Background(), now, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(overdue.ID, got[0].ID)
}

func (s *SessionStoreSuite) TestListPurgeable() {
	now := time.Now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	stale := s.newSession(models.StatusRejected)
	stale.UpdatedAt = now.Add(-48 * time.Hour)
	stale.Artifacts = []models.Artifact{{
		ID:         id.ArtifactID(uuid.New()),
		Kind:       id.ArtifactKindFront,
		StorageRef: "blob/front",
	}}

	purged := s.newSession(models.StatusRejected)
	purged.UpdatedAt = now.Add(-48 * time.Hour)
	purgedAt := now.Add(-36 * time.Hour)
	purged.Artifacts = []models.Artifact{{
		ID:         id.ArtifactID(uuid.New()),
		Kind:       id.ArtifactKindFront,
		StorageRef: "blob/front",
		PurgedAt:   &purgedAt,
	}}

	accepted := s.newSession(models.StatusAccepted)
	accepted.UpdatedAt = now.Add(-48 * time.Hour)
	accepted.Artifacts = stale.Artifacts

	recent := s.newSession(models.StatusRejected)
	recent.Artifacts = stale.Artifacts

	// Approved but never accepted counts as abandoned; its documents go too.
	abandoned := s.newSession(models.StatusApproved)
	abandoned.UpdatedAt = now.Add(-48 * time.Hour)
	abandoned.Artifacts = []models.Artifact{{
		ID:         id.ArtifactID(uuid.New()),
		Kind:       id.ArtifactKindSelfie,
		StorageRef: "blob/selfie",
	}}

	for _, session := range []*models.Session{stale, purged, accepted, recent, abandoned} {
		s.Require().NoError(s.store.Create(context.Background(), session))
	}

	got, err := s.store.ListPurgeable(context.Background(), cutoff, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	ids := []id.SessionID{got[0].ID, got[1].ID}
	s.Contains(ids, stale.ID)
	s.Contains(ids, abandoned.ID)
}
