//go:build integration

package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/audit"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/testutil/containers"
)

// Justification: the audit table is the compliance record; the session
// filter and both orderings come from SQL, not Go, so they get one pass
// against a real Postgres.
type AuditPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *audit.PostgresStore
}

func TestAuditPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditPostgresSuite))
}

func (s *AuditPostgresSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = audit.NewPostgresStore(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *AuditPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "kyc_audit_events"))
}

func (s *AuditPostgresSuite) TestAppendAndListBySession() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	sessionID := id.SessionID(uuid.New())
	other := id.SessionID(uuid.New())

	events := []audit.Event{
		{
			Category:  audit.CategoryOperations,
			Timestamp: now,
			SessionID: sessionID,
			UserID:    id.UserID(uuid.New()),
			Action:    string(audit.EventSessionCreated),
			RequestID: "req-1",
			ClientIP:  "203.0.113.9",
		},
		{
			Category:  audit.CategoryCompliance,
			Timestamp: now.Add(time.Minute),
			SessionID: sessionID,
			Action:    string(audit.EventSessionDecided),
			Decision:  "APPROVED",
			Reason:    "all_checks_passed",
		},
		{
			Category:  audit.CategoryOperations,
			Timestamp: now.Add(2 * time.Minute),
			SessionID: other,
			Action:    string(audit.EventSessionCreated),
		},
	}
	for _, event := range events {
		s.Require().NoError(s.store.Append(ctx, event))
	}

	got, err := s.store.ListBySession(ctx, sessionID)
	s.Require().NoError(err)
	s.Require().Len(got, 2)

	// Oldest first, and the row survives the round trip intact.
	s.Equal(string(audit.EventSessionCreated), got[0].Action)
	s.Equal("req-1", got[0].RequestID)
	s.Equal("203.0.113.9", got[0].ClientIP)
	s.True(got[0].Timestamp.Equal(now))

	s.Equal(string(audit.EventSessionDecided), got[1].Action)
	s.Equal(audit.CategoryCompliance, got[1].Category)
	s.Equal("APPROVED", got[1].Decision)
	s.Equal("all_checks_passed", got[1].Reason)
	s.Equal(sessionID, got[1].SessionID)
}

func (s *AuditPostgresSuite) TestListRecentNewestFirst() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			Category:  audit.CategoryOperations,
			Timestamp: now.Add(time.Duration(i) * time.Second),
			SessionID: id.SessionID(uuid.New()),
			Action:    string(audit.EventArtifactCaptured),
		}))
	}

	got, err := s.store.ListRecent(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.True(got[0].Timestamp.Equal(now.Add(4 * time.Second)))
	s.True(got[1].Timestamp.After(got[2].Timestamp))
}
