package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"soulbind/pkg/domain"
	audit "soulbind/pkg/platform/audit"
	txcontext "soulbind/pkg/platform/tx"
)

// Store persists audit events in PostgreSQL. Appends join an ambient SQL
// transaction when the context carries one, so callers that need an event
// row to commit with their own writes can arrange that.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the audit schema. Idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			category TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			principal TEXT NOT NULL,
			action TEXT NOT NULL,
			height BIGINT NOT NULL,
			token_id BIGINT NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_principal ON audit_events (principal)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events (timestamp DESC)`,
	}
	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("audit migration %d failed: %w", i, err)
		}
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes an audit event. The category is always derived from the
// action; the eventCategories map is the source of truth.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, principal, action,
			height, token_id, reason, request_id, actor_id, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		string(event.Principal),
		event.Action,
		int64(event.Height),
		int64(event.TokenID),
		event.Reason,
		event.RequestID,
		event.ActorID,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByPrincipal returns events for a specific principal, newest first.
func (s *Store) ListByPrincipal(ctx context.Context, principal domain.Principal) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, principal, action,
			   height, token_id, reason, request_id, actor_id, device
		FROM audit_events
		WHERE principal = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, string(principal))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAll returns all audit events, newest first.
func (s *Store) ListAll(ctx context.Context) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, principal, action,
			   height, token_id, reason, request_id, actor_id, device
		FROM audit_events
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, principal, action,
			   height, token_id, reason, request_id, actor_id, device
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var event audit.Event
		var category, principal string
		var height, tokenID int64
		if err := rows.Scan(
			&category,
			&event.Timestamp,
			&principal,
			&event.Action,
			&height,
			&tokenID,
			&event.Reason,
			&event.RequestID,
			&event.ActorID,
			&event.Device,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.Principal = domain.Principal(principal)
		event.Height = domain.Height(height)
		event.TokenID = domain.TokenID(tokenID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
