package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/money"
)

var now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newBooking(t *testing.T) *booking.Booking {
	t.Helper()
	dr, err := daterange.Parse("2024-06-01", "2024-06-05")
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{
		ID:         "b-1",
		PropertyID: "p-1",
		GuestID:    "guest-1",
		HostID:     "host-1",
		Range:      dr,
		Total:      money.Must(10000, "KES"),
		CreatedAt:  now,
	})
	require.NoError(t, err)
	return b
}

func eventNames(b *booking.Booking) []string {
	var names []string
	for _, ev := range b.Drain() {
		names = append(names, ev.EventName())
	}
	return names
}

func TestNewBookingStartsPending(t *testing.T) {
	b := newBooking(t)
	assert.Equal(t, booking.StatePending, b.State)
	assert.Equal(t, 4, b.Nights())
	assert.Equal(t, []string{"booking.requested"}, eventNames(b))
}

func TestNewBookingValidation(t *testing.T) {
	_, err := booking.NewBooking(booking.CreateParams{Total: money.Must(1, "KES")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = booking.NewBooking(booking.CreateParams{GuestID: "g", Total: money.Must(1, "KES")})
	assert.ErrorIs(t, err, booking.ErrInvalidRange)
}

func TestCheckStayBoundsLength(t *testing.T) {
	year, err := daterange.Parse("2024-01-01", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, booking.MaxStayNights, year.Nights())
	assert.NoError(t, booking.CheckStay(year))

	longer, err := daterange.Parse("2024-01-01", "2025-01-02")
	require.NoError(t, err)
	err = booking.CheckStay(longer)
	assert.ErrorIs(t, err, booking.ErrStayTooLong)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = booking.NewBooking(booking.CreateParams{GuestID: "g", Range: longer, Total: money.Must(1, "KES")})
	assert.ErrorIs(t, err, booking.ErrStayTooLong)
}

func TestPaymentLifecycle(t *testing.T) {
	b := newBooking(t)
	b.Drain()

	require.NoError(t, b.AwaitPayment("pay-1", now))
	assert.Equal(t, booking.StateWaitingMoney, b.State)
	require.NoError(t, b.AwaitPayment("pay-1", now))
	assert.Equal(t, []string{"booking.awaiting_payment"}, eventNames(b))

	require.NoError(t, b.RevertToPending("gateway failed", now))
	assert.Equal(t, booking.StatePending, b.State)

	require.NoError(t, b.AwaitPayment("pay-1", now))
	require.NoError(t, b.ConfirmPayment("pay-1", now))
	require.NoError(t, b.ConfirmPayment("pay-1", now))
	assert.Equal(t, booking.StateConfirmed, b.State)
	assert.Equal(t, []string{"booking.payment_failed", "booking.awaiting_payment", "booking.confirmed"}, eventNames(b))

	assert.ErrorIs(t, b.AwaitPayment("pay-2", now), booking.ErrInvalidState)
}

func TestCancel(t *testing.T) {
	b := newBooking(t)
	require.NoError(t, b.Cancel("guest-1", now))
	assert.Equal(t, booking.StateCanceled, b.State)

	err := b.Cancel("guest-1", now)
	assert.ErrorIs(t, err, booking.ErrAlreadyCanceled)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.ErrorIs(t, b.ConfirmPayment("pay-1", now), booking.ErrInvalidState)
	assert.ErrorIs(t, b.RevertToPending("late", now), booking.ErrInvalidState)
	assert.ErrorIs(t, b.Confirm("host-1", now), booking.ErrInvalidState)
}

func TestManualConfirmAndComplete(t *testing.T) {
	b := newBooking(t)
	assert.ErrorIs(t, b.Complete(now), booking.ErrInvalidState)
	require.NoError(t, b.Confirm("host-1", now))
	require.NoError(t, b.Complete(now))
	assert.Equal(t, booking.StateCompleted, b.State)
	assert.ErrorIs(t, b.Cancel("guest-1", now), booking.ErrInvalidState)
}

func TestParseState(t *testing.T) {
	s, ok := booking.ParseState(" waiting_money ")
	assert.True(t, ok)
	assert.Equal(t, booking.StateWaitingMoney, s)
	_, ok = booking.ParseState("ACCEPTED")
	assert.False(t, ok)
}

func TestCloneDropsEvents(t *testing.T) {
	b := newBooking(t)
	cp := b.Clone()
	assert.Empty(t, cp.Pending())
	assert.Equal(t, b.ID, cp.ID)
}
