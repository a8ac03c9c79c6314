package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS kyc_audit_events (
	id UUID PRIMARY KEY,
	category TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	session_id UUID,
	user_id UUID,
	action TEXT NOT NULL,
	decision TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	client_ip TEXT NOT NULL DEFAULT '',
	device_label TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_kyc_audit_session ON kyc_audit_events (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_kyc_audit_timestamp ON kyc_audit_events (timestamp);
`

const auditColumns = `category, timestamp, session_id, user_id, action, decision,
	reason, request_id, client_ip, device_label`

// PostgresStore persists audit events durably. Rows are append-only; the
// retention sweeper never touches this table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit table and its indexes if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createAuditTable); err != nil {
		return fmt.Errorf("migrate kyc_audit_events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO kyc_audit_events (id, ` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(event.Category),
		event.Timestamp,
		nullableUUID(uuid.UUID(event.SessionID)),
		nullableUUID(uuid.UUID(event.UserID)),
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.DeviceLabel,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM kyc_audit_events
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM kyc_audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event     Event
			category  string
			sessionID uuid.NullUUID
			userID    uuid.NullUUID
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&sessionID,
			&userID,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.DeviceLabel,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = EventCategory(category)
		if sessionID.Valid {
			event.SessionID = id.SessionID(sessionID.UUID)
		}
		if userID.Valid {
			event.UserID = id.UserID(userID.UUID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
