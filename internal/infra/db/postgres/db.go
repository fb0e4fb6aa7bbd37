package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		host_id TEXT NOT NULL,
		name TEXT NOT NULL,
		city TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		nightly_rate_minor BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL REFERENCES properties(id),
		guest_id TEXT NOT NULL,
		host_id TEXT NOT NULL,
		check_in DATE NOT NULL,
		check_out DATE NOT NULL,
		total_minor BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		CHECK (check_out > check_in)
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_property_state_idx ON bookings (property_id, state)`,
	`CREATE INDEX IF NOT EXISTS bookings_guest_idx ON bookings (guest_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS bookings_host_idx ON bookings (host_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		seq BIGSERIAL,
		booking_id TEXT NOT NULL REFERENCES bookings(id),
		amount_minor BIGINT NOT NULL,
		currency CHAR(3) NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		external_id TEXT,
		initiated_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		version BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_one_pending_idx ON payments (booking_id) WHERE status = 'PENDING'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_external_id_idx ON payments (external_id) WHERE external_id IS NOT NULL AND external_id <> ''`,
	`CREATE INDEX IF NOT EXISTS payments_booking_idx ON payments (booking_id, created_at DESC, seq DESC)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		payload BYTEA NOT NULL,
		headers JSONB NOT NULL DEFAULT '{}',
		occurred_at TIMESTAMPTZ NOT NULL,
		aggregate TEXT NOT NULL,
		state TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL,
		claimed_by TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_due_idx ON outbox (state, next_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS idempotency (
		key TEXT PRIMARY KEY,
		payload BYTEA,
		error TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS inbox (
		event_id TEXT NOT NULL,
		consumer TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (event_id, consumer)
	)`,
}

// InitialiseDB creates tables and indexes when they are missing.
func InitialiseDB(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialising schema: %w", err)
		}
	}
	return nil
}
