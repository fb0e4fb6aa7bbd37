package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"stayhub/internal/app/middleware"
)

// IdempotencyStore keeps command outcomes for TTL; older rows read as absent
// and are replaced on the next save. A live row is never overwritten, so the
// first of two racing saves wins.
type IdempotencyStore struct {
	db  *sqlx.DB
	ttl time.Duration
	now func() time.Time
}

func NewIdempotencyStore(db *sqlx.DB, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &IdempotencyStore{db: db, ttl: ttl, now: time.Now}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var row idempotencyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT key, payload, error, error_kind, occurred_at FROM idempotency
		WHERE key = $1 AND created_at > $2`,
		key, s.now().UTC().Add(-s.ttl),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	return middleware.IdempotencyRecord{
		Key:        row.Key,
		Payload:    row.Payload,
		Error:      row.Error,
		ErrorKind:  row.ErrorKind,
		OccurredAt: row.OccurredAt.UTC(),
	}, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency (key, payload, error, error_kind, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			error = EXCLUDED.error,
			error_kind = EXCLUDED.error_kind,
			occurred_at = EXCLUDED.occurred_at,
			created_at = EXCLUDED.created_at
		WHERE idempotency.created_at <= $7`,
		rec.Key, rec.Payload, rec.Error, rec.ErrorKind, rec.OccurredAt, s.now().UTC(), s.now().UTC().Add(-s.ttl),
	)
	return err
}

type idempotencyRow struct {
	Key        string    `db:"key"`
	Payload    []byte    `db:"payload"`
	Error      string    `db:"error"`
	ErrorKind  string    `db:"error_kind"`
	OccurredAt time.Time `db:"occurred_at"`
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
