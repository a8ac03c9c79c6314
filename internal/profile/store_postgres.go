package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/sentinel"
)

// createAttachmentsTable holds one row per accepted session. The unique
// session key is what makes Attach idempotent under races: both racers
// insert, one row wins, both read the same ref back.
const createAttachmentsTable = `
CREATE TABLE IF NOT EXISTS kyc_profile_attachments (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL UNIQUE,
	user_id UUID NOT NULL,
	application_id UUID,
	outcome TEXT NOT NULL,
	extracted JSONB,
	evidence JSONB NOT NULL DEFAULT '[]'::jsonb,
	verified_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kyc_profile_attachments_user
	ON kyc_profile_attachments (user_id);
`

// PostgresStore persists attachments in the loan platform's application
// database over a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// NewPostgresStoreFromDSN connects a fresh pool, ensures the schema and
// returns the store. The caller owns Close.
func NewPostgresStoreFromDSN(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	store := NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the attachments schema if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createAttachmentsTable); err != nil {
		return fmt.Errorf("migrating profile attachments schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Attach(ctx context.Context, attachment Attachment) (string, error) {
	evidence, err := json.Marshal(attachment.Evidence)
	if err != nil {
		return "", fmt.Errorf("marshaling evidence refs: %w", err)
	}
	var extracted []byte
	if attachment.Extracted != nil {
		if extracted, err = json.Marshal(attachment.Extracted); err != nil {
			return "", fmt.Errorf("marshaling extracted identity: %w", err)
		}
	}

	applicationID := uuid.NullUUID{
		UUID:  uuid.UUID(attachment.ApplicationID),
		Valid: !attachment.ApplicationID.IsNil(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kyc_profile_attachments
			(id, session_id, user_id, application_id, outcome, extracted, evidence, verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id) DO NOTHING`,
		uuid.New(),
		uuid.UUID(attachment.SessionID),
		uuid.UUID(attachment.UserID),
		applicationID,
		string(attachment.Outcome),
		extracted,
		evidence,
		attachment.VerifiedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("attaching profile for session %s: %w", attachment.SessionID, err)
	}

	// Read the winning row's id; under a race this is the same for both.
	var ref uuid.UUID
	err = s.pool.QueryRow(ctx,
		`SELECT id FROM kyc_profile_attachments WHERE session_id = $1`,
		uuid.UUID(attachment.SessionID)).Scan(&ref)
	if err != nil {
		return "", fmt.Errorf("reading profile ref for session %s: %w", attachment.SessionID, err)
	}
	return ref.String(), nil
}

func (s *PostgresStore) GetBySession(ctx context.Context, sessionID id.SessionID) (string, *Attachment, error) {
	var (
		ref           uuid.UUID
		userID        uuid.UUID
		applicationID uuid.NullUUID
		outcome       string
		extracted     []byte
		evidence      []byte
		verifiedAt    time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, application_id, outcome, extracted, evidence, verified_at
		FROM kyc_profile_attachments WHERE session_id = $1`,
		uuid.UUID(sessionID)).
		Scan(&ref, &userID, &applicationID, &outcome, &extracted, &evidence, &verifiedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, fmt.Errorf("profile attachment for session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return "", nil, fmt.Errorf("reading profile attachment for session %s: %w", sessionID, err)
	}

	attachment := Attachment{
		SessionID:  sessionID,
		UserID:     id.UserID(userID),
		Outcome:    id.Outcome(outcome),
		VerifiedAt: verifiedAt,
	}
	if applicationID.Valid {
		attachment.ApplicationID = id.ApplicationID(applicationID.UUID)
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &attachment.Evidence); err != nil {
			return "", nil, fmt.Errorf("unmarshaling evidence refs for session %s: %w", sessionID, err)
		}
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &attachment.Extracted); err != nil {
			return "", nil, fmt.Errorf("unmarshaling extracted identity for session %s: %w", sessionID, err)
		}
	}
	return ref.String(), &attachment, nil
}
