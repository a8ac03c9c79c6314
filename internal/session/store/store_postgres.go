package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// executeAttempts bounds the optimistic retry loop. Contention on a single
// session is rare (two devices, a worker tick, a sweeper), so a losing
// writer almost always succeeds on its second read.
const executeAttempts = 3

const defaultListLimit = 100

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS kyc_sessions (
	id UUID PRIMARY KEY,
	owner_user_id UUID NOT NULL,
	application_id UUID,
	predecessor_id UUID,
	status TEXT NOT NULL,
	pairing_expires_at TIMESTAMPTZ NOT NULL,
	artifacts JSONB NOT NULL DEFAULT '[]'::jsonb,
	decision JSONB,
	profile_ref TEXT NOT NULL DEFAULT '',
	created_device_label TEXT NOT NULL DEFAULT '',
	created_device_fingerprint TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	submitted_at TIMESTAMPTZ,
	accepted_at TIMESTAMPTZ,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_kyc_sessions_status ON kyc_sessions (status, updated_at);
CREATE INDEX IF NOT EXISTS idx_kyc_sessions_owner ON kyc_sessions (owner_user_id);
CREATE INDEX IF NOT EXISTS idx_kyc_sessions_deadline ON kyc_sessions (pairing_expires_at)
	WHERE status IN ('CREATED', 'CAPTURING');
`

const sessionColumns = `id, owner_user_id, application_id, predecessor_id, status,
	pairing_expires_at, artifacts, decision, profile_ref, created_device_label,
	created_device_fingerprint, created_at, updated_at, submitted_at, accepted_at, version`

// PostgresStore persists sessions in PostgreSQL. Transitions use an
// optimistic version check instead of row locks: the state machine's
// "single atomic check-and-set" requirement maps onto a conditional
// UPDATE, and losers re-read and re-apply.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the sessions table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("migrate kyc_sessions: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	artifacts, decision, err := marshalDocs(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO kyc_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(session.ID),
		uuid.UUID(session.OwnerUserID),
		nullableID(uuid.UUID(session.ApplicationID)),
		nullableID(uuid.UUID(session.PredecessorID)),
		string(session.Status),
		session.PairingExpiresAt,
		artifacts,
		decision,
		session.ProfileRef,
		session.CreatedDeviceLabel,
		session.CreatedDeviceFingerprint,
		session.CreatedAt,
		session.UpdatedAt,
		session.SubmittedAt,
		session.AcceptedAt,
		int64(1),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, _, err := s.get(ctx, sessionID)
	return session, err
}

func (s *PostgresStore) get(ctx context.Context, sessionID id.SessionID) (*models.Session, int64, error) {
	query := `SELECT ` + sessionColumns + ` FROM kyc_sessions WHERE id = $1`
	session, version, err := scanSession(s.db.QueryRowContext(ctx, query, uuid.UUID(sessionID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("session %s not found: %w", sessionID, sentinel.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("get session: %w", err)
	}
	return session, version, nil
}

func (s *PostgresStore) Execute(ctx context.Context, sessionID id.SessionID,
	validate func(*models.Session) error,
	mutate func(*models.Session)) (*models.Session, error) {

	for attempt := 0; attempt < executeAttempts; attempt++ {
		session, version, err := s.get(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		if err := validate(session); err != nil {
			return nil, err
		}
		mutate(session)

		artifacts, decision, err := marshalDocs(session)
		if err != nil {
			return nil, err
		}

		query := `
			UPDATE kyc_sessions
			SET status = $1, pairing_expires_at = $2, artifacts = $3, decision = $4,
				profile_ref = $5, updated_at = $6, submitted_at = $7, accepted_at = $8,
				version = version + 1
			WHERE id = $9 AND version = $10
		`
		res, err := s.db.ExecContext(ctx, query,
			string(session.Status),
			session.PairingExpiresAt,
			artifacts,
			decision,
			session.ProfileRef,
			session.UpdatedAt,
			session.SubmittedAt,
			session.AcceptedAt,
			uuid.UUID(sessionID),
			version,
		)
		if err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		} else if rows == 1 {
			return session, nil
		}
		// A concurrent writer advanced the version; re-read and retry.
	}

	return nil, fmt.Errorf("session %s transition contended %d times: %w",
		sessionID, executeAttempts, sentinel.ErrConflict)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, string(status), listLimit(limit))
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE status IN ('CREATED', 'CAPTURING') AND pairing_expires_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, now, listLimit(limit))
}

func (s *PostgresStore) ListPurgeable(ctx context.Context, cutoff time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM kyc_sessions
		WHERE status IN ('APPROVED', 'REJECTED', 'MANUAL_REVIEW', 'FAILED', 'EXPIRED')
			AND updated_at < $1
			AND EXISTS (
				SELECT 1 FROM jsonb_array_elements(artifacts) AS a
				WHERE COALESCE(a->>'storage_ref', '') <> '' AND a->>'purged_at' IS NULL
			)
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return s.list(ctx, query, cutoff, listLimit(limit))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, _, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, int64, error) {
	var (
		sessionID     uuid.UUID
		ownerID       uuid.UUID
		applicationID uuid.NullUUID
		predecessorID uuid.NullUUID
		status        string
		artifactsJSON []byte
		decisionJSON  []byte
		submittedAt   sql.NullTime
		acceptedAt    sql.NullTime
		version       int64
	)

	session := &models.Session{}
	err := row.Scan(
		&sessionID,
		&ownerID,
		&applicationID,
		&predecessorID,
		&status,
		&session.PairingExpiresAt,
		&artifactsJSON,
		&decisionJSON,
		&session.ProfileRef,
		&session.CreatedDeviceLabel,
		&session.CreatedDeviceFingerprint,
		&session.CreatedAt,
		&session.UpdatedAt,
		&submittedAt,
		&acceptedAt,
		&version,
	)
	if err != nil {
		return nil, 0, err
	}

	session.ID = id.SessionID(sessionID)
	session.OwnerUserID = id.UserID(ownerID)
	if applicationID.Valid {
		session.ApplicationID = id.ApplicationID(applicationID.UUID)
	}
	if predecessorID.Valid {
		session.PredecessorID = id.SessionID(predecessorID.UUID)
	}
	session.Status = models.Status(status)
	if submittedAt.Valid {
		t := submittedAt.Time
		session.SubmittedAt = &t
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		session.AcceptedAt = &t
	}

	if err := json.Unmarshal(artifactsJSON, &session.Artifacts); err != nil {
		return nil, 0, fmt.Errorf("decode artifacts: %w", err)
	}
	if len(decisionJSON) > 0 {
		session.Decision = &models.Decision{}
		if err := json.Unmarshal(decisionJSON, session.Decision); err != nil {
			return nil, 0, fmt.Errorf("decode decision: %w", err)
		}
	}

	return session, version, nil
}

func marshalDocs(session *models.Session) (artifacts []byte, decision []byte, err error) {
	docs := session.Artifacts
	if docs == nil {
		docs = []models.Artifact{}
	}
	artifacts, err = json.Marshal(docs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode artifacts: %w", err)
	}
	if session.Decision != nil {
		decision, err = json.Marshal(session.Decision)
		if err != nil {
			return nil, nil, fmt.Errorf("encode decision: %w", err)
		}
	}
	return artifacts, decision, nil
}

func nullableID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
