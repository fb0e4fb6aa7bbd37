package outbox

import (
	"context"
	"time"
)

const (
	StateNew     = "NEW"
	StateClaimed = "CLAIMED"
	StateSent    = "SENT"
	StateFailed  = "FAILED"
)

// Message is a stored outbox record as seen by the relay.
type Message struct {
	ID          string            `bson:"_id" db:"id"`
	Name        string            `bson:"name" db:"name"`
	Payload     []byte            `bson:"payload" db:"payload"`
	OccurredAt  time.Time         `bson:"occurred_at" db:"occurred_at"`
	Aggregate   string            `bson:"aggregate" db:"aggregate"`
	Headers     map[string]string `bson:"headers" db:"-"`
	State       string            `bson:"state" db:"state"`
	Attempts    int               `bson:"attempts" db:"attempts"`
	NextAttempt time.Time         `bson:"next_attempt_at" db:"next_attempt_at"`
	ClaimedBy   string            `bson:"claimed_by" db:"claimed_by"`
	LastError   string            `bson:"last_error" db:"last_error"`
}

// Store is the relay side of an outbox. Claim returns nil when nothing is due.
type Store interface {
	Claim(ctx context.Context, workerID string) (*Message, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error
}
