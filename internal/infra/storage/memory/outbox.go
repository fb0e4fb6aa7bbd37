package memory

import (
	"context"
	"time"

	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/app/uow"
	"stayhub/internal/infra/outbox"
)

const (
	stateNew     = outbox.StateNew
	stateClaimed = outbox.StateClaimed
	stateSent    = outbox.StateSent
	stateFailed  = outbox.StateFailed
)

// Outbox stages records in the memory unit bound to ctx so they become visible
// only when the unit commits. It also serves as the relay's Store.
type Outbox struct {
	store *Store
	now   func() time.Time
}

func NewOutbox(store *Store) *Outbox {
	return &Outbox{store: store, now: time.Now}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if u, ok := unit.(*Unit); ok && u.store == o.store {
			if err := u.writable(); err != nil {
				return err
			}
			u.events = append(u.events, record)
			return nil
		}
	}
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	o.store.outbox = append(o.store.outbox, &outboxRow{record: record, state: stateNew})
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*outbox.Message, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	now := o.now()
	for _, row := range o.store.outbox {
		if row.state != stateNew && row.state != stateFailed {
			continue
		}
		if row.nextAttempt.After(now) {
			continue
		}
		row.state = stateClaimed
		row.claimedBy = workerID
		return row.message(), nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	if row := o.store.outboxRowLocked(id); row != nil {
		row.state = stateSent
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	if row := o.store.outboxRowLocked(id); row != nil {
		row.state = stateFailed
		row.attempts++
		row.nextAttempt = next
		row.lastError = errMsg
	}
	return nil
}

// Records returns every committed record in insertion order.
func (o *Outbox) Records() []appoutbox.EventRecord {
	o.store.mu.RLock()
	defer o.store.mu.RUnlock()
	out := make([]appoutbox.EventRecord, 0, len(o.store.outbox))
	for _, row := range o.store.outbox {
		out = append(out, row.record)
	}
	return out
}

func (s *Store) outboxRowLocked(id string) *outboxRow {
	for _, row := range s.outbox {
		if row.record.ID == id {
			return row
		}
	}
	return nil
}

func (r *outboxRow) message() *outbox.Message {
	return &outbox.Message{
		ID:          r.record.ID,
		Name:        r.record.Name,
		Payload:     r.record.Payload,
		OccurredAt:  r.record.OccurredAt,
		Aggregate:   r.record.Aggregate,
		Headers:     r.record.Headers,
		State:       r.state,
		Attempts:    r.attempts,
		NextAttempt: r.nextAttempt,
		ClaimedBy:   r.claimedBy,
		LastError:   r.lastError,
	}
}

var (
	_ appoutbox.Outbox = (*Outbox)(nil)
	_ outbox.Store     = (*Outbox)(nil)
)
