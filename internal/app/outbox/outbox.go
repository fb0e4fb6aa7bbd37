// Package outbox turns drained domain events into records that are stored with
// the aggregate changes and relayed to the broker later.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/domain/shared/events"
)

// EventRecord is one serialized domain event. Aggregate doubles as the
// partition key when the record is published.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// Outbox accepts records inside the caller's unit of work. Implementations
// must persist them atomically with the aggregate changes bound to ctx.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

// Notifier is told that new records may be waiting. Notify must not block.
type Notifier interface {
	Notify()
}

type EventEncoder interface {
	Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error)
}

// JSONEventEncoder marshals the event struct as the payload. Headers, when
// set, supplies per request metadata such as a correlation id.
type JSONEventEncoder struct {
	NewID   func() string
	Headers func(ctx context.Context) map[string]string
}

func (e JSONEventEncoder) Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("outbox: encode %s: %w", ev.EventName(), err)
	}
	newID := e.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	headers := map[string]string{}
	if e.Headers != nil {
		for k, v := range e.Headers(ctx) {
			headers[k] = v
		}
	}
	return EventRecord{
		ID:         newID(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// Source is an aggregate buffering domain events.
type Source interface {
	Drain() []events.DomainEvent
}

// Record drains every source in order and adds the encoded events to box.
// A nil box drops the events; a nil encoder means JSONEventEncoder.
func Record(ctx context.Context, box Outbox, encoder EventEncoder, sources ...Source) error {
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, src := range sources {
		if src == nil {
			continue
		}
		for _, ev := range src.Drain() {
			if box == nil {
				continue
			}
			rec, err := encoder.Encode(ctx, ev)
			if err != nil {
				return err
			}
			if err := box.Add(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
