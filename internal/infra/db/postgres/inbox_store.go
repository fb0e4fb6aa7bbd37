package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// InboxStore deduplicates consumed broker messages per consumer name.
type InboxStore struct {
	db       *sqlx.DB
	consumer string
}

func NewInboxStore(db *sqlx.DB, consumer string) *InboxStore {
	return &InboxStore{db: db, consumer: consumer}
}

func (s *InboxStore) Seen(ctx context.Context, eventID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox (event_id, consumer) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		eventID, s.consumer,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (s *InboxStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inbox WHERE event_id = $1 AND consumer = $2`, eventID, s.consumer)
	return err
}
