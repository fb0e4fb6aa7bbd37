package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/events"
	"stayhub/internal/domain/shared/money"
)

var (
	ErrPaymentNotFound    = fmt.Errorf("%w: payment", apperr.ErrNotFound)
	ErrAlreadyPaid        = fmt.Errorf("%w: booking already paid for, no new payment is required", apperr.ErrConflict)
	ErrPaymentInProgress  = fmt.Errorf("%w: a payment is already in progress for this booking", apperr.ErrConflict)
	ErrAmountMismatch     = fmt.Errorf("%w: payment amount does not match booking total", apperr.ErrValidation)
	ErrUnsupportedMethod  = fmt.Errorf("%w: unsupported payment method", apperr.ErrValidation)
	ErrInvalidState       = fmt.Errorf("%w: payment: invalid state transition", apperr.ErrConflict)
	ErrExternalIDAssigned = fmt.Errorf("%w: payment: external transaction id already assigned", apperr.ErrConflict)
	// ErrDuplicate is returned by repositories when a unique index (one PENDING
	// payment per booking, unique external id) rejects a write.
	ErrDuplicate = fmt.Errorf("%w: payment", apperr.ErrPersistenceRace)
)

type PaymentID string

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

type Method string

const (
	MethodStripe  Method = "STRIPE"
	MethodMpesa   Method = "MPESA"
	MethodPaypal  Method = "PAYPAL"
	MethodAirtel  Method = "AIRTEL"
	MethodSandbox Method = "SANDBOX"
)

// ParseMethod accepts any casing of a supported gateway name.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case MethodStripe, MethodMpesa, MethodPaypal, MethodAirtel, MethodSandbox:
		return m, nil
	}
	return "", ErrUnsupportedMethod
}

type Payment struct {
	ID         PaymentID
	BookingID  booking.BookingID
	Amount     money.Money
	Method     Method
	Status     Status
	ExternalID string
	// InitiatedAt is when the current attempt started; staleness is measured from it.
	InitiatedAt time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id PaymentID) (*Payment, error)
	// LatestByBooking returns the most recently created payment or ErrPaymentNotFound.
	LatestByBooking(ctx context.Context, id booking.BookingID) (*Payment, error)
	ByExternalID(ctx context.Context, externalID string) (*Payment, error)
	// Insert fails with ErrDuplicate when another PENDING payment exists for the booking.
	Insert(ctx context.Context, p *Payment) error
	Save(ctx context.Context, p *Payment) error
	ListByBooking(ctx context.Context, id booking.BookingID) ([]*Payment, error)
	ListByStatus(ctx context.Context, status Status) ([]*Payment, error)
}

type CreateParams struct {
	ID        PaymentID
	BookingID booking.BookingID
	Amount    money.Money
	Method    Method
	Now       time.Time
}

func New(params CreateParams) (*Payment, error) {
	if _, err := ParseMethod(string(params.Method)); err != nil {
		return nil, err
	}
	if params.Amount.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", apperr.ErrValidation)
	}
	now := params.Now.UTC()
	p := &Payment{
		ID:          params.ID,
		BookingID:   params.BookingID,
		Amount:      params.Amount,
		Method:      params.Method,
		Status:      StatusPending,
		InitiatedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Record(PaymentInitiated{PaymentID: p.ID, BookingID: p.BookingID, Amount: p.Amount, Method: p.Method, Reused: false, At: now})
	return p, nil
}

// IsStale reports whether a PENDING attempt is older than timeout.
func (p *Payment) IsStale(now time.Time, timeout time.Duration) bool {
	if p.Status != StatusPending {
		return false
	}
	return now.Sub(p.InitiatedAt) >= timeout
}

// Reuse resets a FAILED payment to a fresh PENDING attempt instead of inserting
// a new row. The previous external id is dropped so late callbacks for it miss.
func (p *Payment) Reuse(amount money.Money, method Method, now time.Time) error {
	if p.Status != StatusFailed {
		return ErrInvalidState
	}
	now = now.UTC()
	p.Status = StatusPending
	p.Amount = amount
	p.Method = method
	p.ExternalID = ""
	p.InitiatedAt = now
	p.CompletedAt = time.Time{}
	p.UpdatedAt = now
	p.Record(PaymentInitiated{PaymentID: p.ID, BookingID: p.BookingID, Amount: p.Amount, Method: p.Method, Reused: true, At: now})
	return nil
}

// AttachExternalID stores the gateway reference returned by initiation.
func (p *Payment) AttachExternalID(externalID string, now time.Time) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" || p.ExternalID == externalID {
		return nil
	}
	if p.ExternalID != "" {
		return ErrExternalIDAssigned
	}
	p.ExternalID = externalID
	p.UpdatedAt = now.UTC()
	return nil
}

// MarkFailed flips the payment to FAILED. It is a no-op when already FAILED.
func (p *Payment) MarkFailed(reason string, now time.Time) {
	if p.Status == StatusFailed {
		return
	}
	p.Status = StatusFailed
	p.UpdatedAt = now.UTC()
	p.Record(PaymentFailed{PaymentID: p.ID, BookingID: p.BookingID, ExternalID: p.ExternalID, Reason: reason, At: p.UpdatedAt})
}

// Resolve applies a gateway verdict. It reports false when the payment already
// carries the same verdict and reference so repeated callbacks change nothing.
func (p *Payment) Resolve(success bool, reference, note string, now time.Time) bool {
	target := StatusFailed
	if success {
		target = StatusSuccess
	}
	reference = strings.TrimSpace(reference)
	if p.Status == target && (reference == "" || reference == p.ExternalID) {
		return false
	}
	now = now.UTC()
	p.Status = target
	if reference != "" {
		p.ExternalID = reference
	}
	if success {
		p.CompletedAt = now
		p.Record(PaymentSucceeded{PaymentID: p.ID, BookingID: p.BookingID, ExternalID: p.ExternalID, Amount: p.Amount, Note: note, At: now})
	} else {
		p.Record(PaymentFailed{PaymentID: p.ID, BookingID: p.BookingID, ExternalID: p.ExternalID, Reason: note, At: now})
	}
	p.UpdatedAt = now
	return true
}

// Clone returns a copy without pending events, used by in-memory stores.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	cp := *p
	cp.EventRecorder = events.EventRecorder{}
	return &cp
}
