package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/infra/outbox"
)

// OutboxStore inserts through the transaction bound to ctx, so records commit
// with the aggregates of the same unit.
type OutboxStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewOutboxStore(db *sqlx.DB) *OutboxStore {
	return &OutboxStore{db: db, now: time.Now}
}

func (s *OutboxStore) Add(ctx context.Context, record appoutbox.EventRecord) error {
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return err
	}
	_, err = queryFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO outbox (id, name, payload, headers, occurred_at, aggregate, state, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Name, record.Payload, headers, record.OccurredAt, record.Aggregate, outbox.StateNew, s.now().UTC(),
	)
	return mapErr(err, nil)
}

// Claim picks the oldest due record. SKIP LOCKED lets several relays run
// against the same table without handing out one record twice.
func (s *OutboxStore) Claim(ctx context.Context, workerID string) (*outbox.Message, error) {
	var row outboxRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE outbox SET state = $1, claimed_by = $2
		WHERE id = (
			SELECT id FROM outbox
			WHERE state IN ($3, $4) AND next_attempt_at <= $5
			ORDER BY next_attempt_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, payload, headers, occurred_at, aggregate, state, attempts, next_attempt_at, claimed_by, last_error`,
		outbox.StateClaimed, workerID, outbox.StateNew, outbox.StateFailed, s.now().UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toMessage()
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outbox SET state = $1, sent_at = $2 WHERE id = $3`, outbox.StateSent, s.now().UTC(), id)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET state = $1, next_attempt_at = $2, last_error = $3, attempts = attempts + 1
		WHERE id = $4`,
		outbox.StateFailed, next, errMsg, id,
	)
	return err
}

type outboxRow struct {
	outbox.Message
	RawHeaders []byte `db:"headers"`
}

func (r outboxRow) toMessage() (*outbox.Message, error) {
	msg := r.Message
	msg.OccurredAt = msg.OccurredAt.UTC()
	msg.NextAttempt = msg.NextAttempt.UTC()
	if len(r.RawHeaders) > 0 {
		if err := json.Unmarshal(r.RawHeaders, &msg.Headers); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}

var (
	_ appoutbox.Outbox = (*OutboxStore)(nil)
	_ outbox.Store     = (*OutboxStore)(nil)
)
