package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
	"stayhub/internal/domain/shared/events"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrBookingNotFound  = fmt.Errorf("%w: booking", apperr.ErrNotFound)
	ErrInvalidState     = fmt.Errorf("%w: booking: invalid state transition", apperr.ErrConflict)
	ErrAlreadyCanceled  = fmt.Errorf("%w: booking already canceled", apperr.ErrConflict)
	ErrDatesUnavailable = fmt.Errorf("%w: selected dates are not available for booking", apperr.ErrConflict)
	ErrInvalidRange     = fmt.Errorf("%w: end date must be after start date", apperr.ErrValidation)
	ErrGuestRequired    = fmt.Errorf("%w: guest id is required", apperr.ErrValidation)
	ErrTotalRequired    = errors.New("booking: total must be positive")
	ErrConcurrentUpdate = fmt.Errorf("%w: booking modified concurrently", apperr.ErrPersistenceRace)
	ErrStayTooLong      = fmt.Errorf("%w: stays are limited to %d nights", apperr.ErrValidation, MaxStayNights)
)

// MaxStayNights bounds a single booking.
const MaxStayNights = 366

// CheckStay validates a requested stay before it is priced.
func CheckStay(dr daterange.DateRange) error {
	if err := dr.Validate(); err != nil {
		return ErrInvalidRange
	}
	if dr.Nights() > MaxStayNights {
		return ErrStayTooLong
	}
	return nil
}

type BookingID string

type BookingState string

const (
	StatePending      BookingState = "PENDING"
	StateWaitingMoney BookingState = "WAITING_MONEY"
	StateConfirmed    BookingState = "CONFIRMED"
	StateCanceled     BookingState = "CANCELED"
	StateCompleted    BookingState = "COMPLETED"
)

// ParseState accepts any casing of a known state name.
func ParseState(raw string) (BookingState, bool) {
	s := BookingState(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatePending, StateWaitingMoney, StateConfirmed, StateCanceled, StateCompleted:
		return s, true
	}
	return "", false
}

// Terminal states are never left by this service.
func (s BookingState) Terminal() bool {
	return s == StateCanceled || s == StateCompleted
}

type Booking struct {
	ID         BookingID
	PropertyID property.PropertyID
	GuestID    string
	HostID     property.HostID
	Range      daterange.DateRange
	Total      money.Money
	State      BookingState
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	// ByIDForUpdate loads the booking holding a row lock where the store supports it.
	ByIDForUpdate(ctx context.Context, id BookingID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	// Save persists changes, failing with ErrConcurrentUpdate when Version is stale.
	Save(ctx context.Context, b *Booking) error
	ListActiveByProperty(ctx context.Context, id property.PropertyID) ([]*Booking, error)
	ListByGuest(ctx context.Context, guestID string) ([]*Booking, error)
	ListByHost(ctx context.Context, hostID property.HostID) ([]*Booking, error)
	ListByState(ctx context.Context, state BookingState) ([]*Booking, error)
}

type CreateParams struct {
	ID         BookingID
	PropertyID property.PropertyID
	GuestID    string
	HostID     property.HostID
	Range      daterange.DateRange
	Total      money.Money
	CreatedAt  time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if strings.TrimSpace(params.GuestID) == "" {
		return nil, ErrGuestRequired
	}
	if err := CheckStay(params.Range); err != nil {
		return nil, err
	}
	if params.Total.Amount <= 0 {
		return nil, ErrTotalRequired
	}
	now := params.CreatedAt.UTC()
	b := &Booking{
		ID:         params.ID,
		PropertyID: params.PropertyID,
		GuestID:    params.GuestID,
		HostID:     params.HostID,
		Range:      params.Range,
		Total:      params.Total,
		State:      StatePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	b.Record(BookingRequested{BookingID: b.ID, PropertyID: b.PropertyID, GuestID: b.GuestID, Range: b.Range, Total: b.Total, At: now})
	return b, nil
}

// Nights is the number of nights covered by the booking.
func (b *Booking) Nights() int {
	return b.Range.Nights()
}

// AwaitPayment moves the booking to WAITING_MONEY once a payment was initiated.
func (b *Booking) AwaitPayment(paymentID string, now time.Time) error {
	switch b.State {
	case StateWaitingMoney:
		return nil
	case StatePending:
	default:
		return ErrInvalidState
	}
	b.State = StateWaitingMoney
	b.UpdatedAt = now.UTC()
	b.Record(BookingAwaitingPayment{BookingID: b.ID, PaymentID: paymentID, At: b.UpdatedAt})
	return nil
}

// ConfirmPayment applies a successful gateway verdict.
func (b *Booking) ConfirmPayment(paymentID string, now time.Time) error {
	if b.State.Terminal() {
		return ErrInvalidState
	}
	if b.State == StateConfirmed {
		return nil
	}
	b.State = StateConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, PropertyID: b.PropertyID, Range: b.Range, Total: b.Total, PaymentID: paymentID, Manual: false, At: b.UpdatedAt})
	return nil
}

// Confirm is the host/admin override that bypasses the payment check.
func (b *Booking) Confirm(actor string, now time.Time) error {
	if b.State.Terminal() {
		return ErrInvalidState
	}
	if b.State == StateConfirmed {
		return nil
	}
	b.State = StateConfirmed
	b.UpdatedAt = now.UTC()
	b.Record(BookingConfirmed{BookingID: b.ID, PropertyID: b.PropertyID, Range: b.Range, Total: b.Total, Actor: actor, Manual: true, At: b.UpdatedAt})
	return nil
}

// RevertToPending is used after a failed payment so the guest can retry.
func (b *Booking) RevertToPending(reason string, now time.Time) error {
	if b.State.Terminal() {
		return ErrInvalidState
	}
	if b.State == StatePending {
		return nil
	}
	b.State = StatePending
	b.UpdatedAt = now.UTC()
	b.Record(BookingPaymentFailed{BookingID: b.ID, Reason: reason, At: b.UpdatedAt})
	return nil
}

func (b *Booking) Cancel(actor string, now time.Time) error {
	switch b.State {
	case StateCanceled:
		return ErrAlreadyCanceled
	case StateCompleted:
		return ErrInvalidState
	}
	b.State = StateCanceled
	b.UpdatedAt = now.UTC()
	b.Record(BookingCanceled{BookingID: b.ID, PropertyID: b.PropertyID, Actor: actor, At: b.UpdatedAt})
	return nil
}

// Complete is driven by the external end-of-stay process.
func (b *Booking) Complete(now time.Time) error {
	if b.State != StateConfirmed {
		return ErrInvalidState
	}
	b.State = StateCompleted
	b.UpdatedAt = now.UTC()
	b.Record(BookingCompleted{BookingID: b.ID, At: b.UpdatedAt})
	return nil
}

// Clone returns a copy without pending events, used by in-memory stores.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	cp := *b
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
