// Package events holds the buffer aggregates use to collect domain events
// until the application layer drains them into the outbox.
package events

import "time"

type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder is embedded by aggregates. The zero value is ready to use.
type EventRecorder struct {
	buf []DomainEvent
}

// Record appends ev unless it is nil.
func (r *EventRecorder) Record(ev DomainEvent) {
	if ev != nil {
		r.buf = append(r.buf, ev)
	}
}

// Pending returns a copy of the buffered events.
func (r *EventRecorder) Pending() []DomainEvent {
	return append([]DomainEvent(nil), r.buf...)
}

// Drain hands over the buffered events and empties the buffer.
func (r *EventRecorder) Drain() []DomainEvent {
	out := r.buf
	r.buf = nil
	return out
}
