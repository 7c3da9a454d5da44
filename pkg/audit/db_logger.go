package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/workspace-billing/pkg/contextkeys"
)

// DBLogger writes audit events to PostgreSQL. The billing_audit_events table
// is created by the workspaces migrations.
type DBLogger struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBLogger creates a database-backed audit logger
func NewDBLogger(db *sql.DB) *DBLogger {
	return &DBLogger{db: db, now: time.Now}
}

// Log inserts event and sets its ID. A zero Timestamp is filled in and the
// request ID is taken from ctx when the event has none.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}

	var metadata interface{}
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = raw
	}

	query := `
		INSERT INTO billing_audit_events (
			timestamp, event_type, status,
			user_id, workspace_id, request_id,
			code, error_message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := l.db.QueryRowContext(ctx, query,
		event.Timestamp, string(event.EventType), string(event.Status),
		nullString(event.UserID), nullString(event.WorkspaceID), nullString(event.RequestID),
		nullString(event.Code), nullString(event.ErrorMessage), metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
