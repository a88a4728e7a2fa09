package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the audit_events table. Execute it via
// [PostgresSink.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id          BIGSERIAL PRIMARY KEY,
    action      TEXT NOT NULL,
    actor_id    TEXT NOT NULL DEFAULT '',
    org_id      TEXT NOT NULL DEFAULT '',
    resource_type TEXT NOT NULL DEFAULT '',
    resource_id TEXT NOT NULL DEFAULT '',
    severity    TEXT NOT NULL DEFAULT 'low',
    details     JSONB NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events(action);
CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred ON audit_events(occurred_at);
`

// DB is the database interface used by [PostgresSink]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink is a [Sink] backed by a PostgreSQL table. Details are stored
// as JSONB so downstream compliance reporting can query into them.
type PostgresSink struct {
	db DB
}

// Compile-time interface check.
var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink using the given connection or pool. The
// caller is responsible for calling [PostgresSink.Migrate] to ensure the
// schema exists before issuing writes.
func NewPostgresSink(db DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Migrate executes the [Schema] DDL, creating the audit_events table and
// indexes if they do not already exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Log implements [Sink].
func (s *PostgresSink) Log(ctx context.Context, ev Event) error {
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	const query = `
		INSERT INTO audit_events (
			action, actor_id, org_id, resource_type, resource_id,
			severity, details, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := s.db.Exec(ctx, query,
		ev.Action, ev.ActorID, ev.OrganizationID, ev.ResourceType,
		ev.ResourceID, string(ev.Severity), detailsJSON, occurred,
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Recent returns at most limit events ordered newest first, for operator
// inspection endpoints and tests.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT action, actor_id, org_id, resource_type, resource_id,
		       severity, details, occurred_at
		FROM audit_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var severity string
		var detailsJSON []byte
		if err := rows.Scan(&ev.Action, &ev.ActorID, &ev.OrganizationID,
			&ev.ResourceType, &ev.ResourceID, &severity, &detailsJSON,
			&ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		ev.Severity = Severity(severity)
		if err := json.Unmarshal(detailsJSON, &ev.Details); err != nil {
			return nil, fmt.Errorf("audit: unmarshal details: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return events, nil
}
