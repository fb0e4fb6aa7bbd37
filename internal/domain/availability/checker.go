package availability

import (
	"context"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/daterange"
)

// Overlaps applies the half-open rule: [s1,e1) and [s2,e2) intersect iff s1<e2 && s2<e1.
func Overlaps(a, b daterange.DateRange) bool {
	return a.Overlaps(b)
}

// IsActive reports whether a booking in state s holds its dates.
func IsActive(s booking.BookingState) bool {
	switch s {
	case booking.StatePending, booking.StateWaitingMoney, booking.StateConfirmed, booking.StateCompleted:
		return true
	}
	return false
}

// ActiveStates lists the states IsActive accepts, for store-side filters.
func ActiveStates() []booking.BookingState {
	return []booking.BookingState{booking.StatePending, booking.StateWaitingMoney, booking.StateConfirmed, booking.StateCompleted}
}

// BookingSource is the slice of booking.Repository the checker reads.
type BookingSource interface {
	ListActiveByProperty(ctx context.Context, id property.PropertyID) ([]*booking.Booking, error)
}

// Checker answers availability questions from the current booking set. Its
// answer is advisory unless the caller holds the property lock and the unit of
// work that will insert the booking.
type Checker struct {
	Bookings BookingSource
}

func NewChecker(bookings BookingSource) *Checker {
	return &Checker{Bookings: bookings}
}

func (c *Checker) IsAvailable(ctx context.Context, propertyID property.PropertyID, r daterange.DateRange) (bool, error) {
	conflicts, err := c.Conflicts(ctx, propertyID, r)
	if err != nil {
		return false, err
	}
	return len(conflicts) == 0, nil
}

// Conflicts returns the active bookings whose ranges intersect r.
func (c *Checker) Conflicts(ctx context.Context, propertyID property.PropertyID, r daterange.DateRange) ([]*booking.Booking, error) {
	existing, err := c.Bookings.ListActiveByProperty(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	var out []*booking.Booking
	for _, b := range existing {
		if b == nil || b.PropertyID != propertyID || !IsActive(b.State) {
			continue
		}
		if Overlaps(b.Range, r) {
			out = append(out, b)
		}
	}
	return out, nil
}
