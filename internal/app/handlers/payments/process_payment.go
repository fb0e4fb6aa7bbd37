package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/auth"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/money"
)

const (
	processPaymentKey = "payments.process"

	DefaultPendingTimeout = 5 * time.Minute
	DefaultGatewayTimeout = 30 * time.Second
)

type ProcessPaymentCommand struct {
	Caller          auth.Principal
	BookingID       string `validate:"required"`
	Amount          string `validate:"required"`
	Method          string `validate:"required"`
	Contact         string
	ReturnURL       string `validate:"omitempty,url"`
	CancelURL       string `validate:"omitempty,url"`
	IdempotencyKeyV string
}

func (c ProcessPaymentCommand) Key() string               { return processPaymentKey }
func (c ProcessPaymentCommand) Principal() auth.Principal { return c.Caller }
func (c ProcessPaymentCommand) AllowedRoles() []auth.Role {
	return []auth.Role{auth.RoleGuest, auth.RoleAdmin}
}
func (c ProcessPaymentCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (c ProcessPaymentCommand) ResultPrototype() any   { return &dto.PaymentHandle{} }
func (c ProcessPaymentCommand) ManagesOwnUnit() bool   { return true }

// ProcessPaymentHandler drives one payment attempt. The decision and the
// booking hand-off commit in a first unit, the gateway is called outside any
// transaction, and its outcome is stored in a second unit. The booking lock
// is held for each unit and released during the gateway call, so verdicts
// for the booking are never starved by a slow provider.
type ProcessPaymentHandler struct {
	UoWFactory     uow.UoWFactory
	Locker         policies.Locker
	Gateways       policies.GatewayResolver
	Outbox         outbox.Outbox
	Encoder        outbox.EventEncoder
	Logger         *slog.Logger
	PendingTimeout time.Duration
	GatewayTimeout time.Duration
	NewID          func() string
	Now            func() time.Time
}

// attempt is what the first unit decided.
type attempt struct {
	payment *payment.Payment
	booking *domainbooking.Booking
	// inFlight is set when another request already owns the pending payment.
	inFlight bool
}

func (h *ProcessPaymentHandler) Handle(ctx context.Context, cmd ProcessPaymentCommand) (*dto.PaymentHandle, error) {
	if err := auth.Require(cmd.Caller, cmd.AllowedRoles()...); err != nil {
		return nil, err
	}
	method, err := payment.ParseMethod(cmd.Method)
	if err != nil {
		return nil, err
	}
	if h.Gateways == nil {
		return nil, apperr.Gateway("no gateways configured")
	}
	gw, err := h.Gateways.Resolve(method)
	if err != nil {
		return nil, err
	}

	att, err := h.prepare(ctx, cmd, method)
	if err != nil {
		return nil, err
	}
	if att.inFlight {
		h.logger().Info("payment already in flight, returning existing attempt",
			"booking_id", cmd.BookingID, "payment_id", att.payment.ID)
		handle := handleFor(att.payment)
		handle.Message = "payment already in progress"
		return &handle, nil
	}

	result, gwErr := h.initiate(ctx, gw, cmd, att)
	if gwErr != nil {
		return nil, h.fail(ctx, att, gwErr)
	}
	return h.attach(ctx, att, result)
}

// prepare validates the amount, decides whether to create, reuse or reject a
// payment, and moves the booking to WAITING_MONEY in one unit.
func (h *ProcessPaymentHandler) prepare(ctx context.Context, cmd ProcessPaymentCommand, method payment.Method) (attempt, error) {
	release, err := h.lock(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return attempt{}, err
	}
	defer release()

	now := h.now()
	var att attempt
	err = support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByIDForUpdate(ctx, domainbooking.BookingID(cmd.BookingID))
		if err != nil {
			return err
		}
		if !cmd.Caller.IsAdmin() && cmd.Caller.UserID != b.GuestID {
			return auth.ErrNotOwner
		}
		amount, err := money.Parse(cmd.Amount, b.Total.Currency)
		if err != nil {
			return apperr.Validation(fmt.Sprintf("invalid amount %q", cmd.Amount))
		}
		if !amount.Equal(b.Total) {
			return payment.ErrAmountMismatch
		}

		p, err := h.decide(ctx, unit, b, amount, method, now)
		if err != nil {
			return err
		}
		if err := b.AwaitPayment(string(p.ID), now); err != nil {
			return err
		}
		if err := unit.Bookings().Save(ctx, b); err != nil {
			return err
		}
		att = attempt{payment: p, booking: b}
		return outbox.Record(ctx, h.Outbox, h.Encoder, p, b)
	})
	if errors.Is(err, apperr.ErrPersistenceRace) {
		return h.recover(ctx, cmd)
	}
	return att, err
}

// decide applies the latest-payment rules and returns the payment that now
// represents the in-flight attempt, already written to the unit.
func (h *ProcessPaymentHandler) decide(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, amount money.Money, method payment.Method, now time.Time) (*payment.Payment, error) {
	repo := unit.Payments()
	latest, err := repo.LatestByBooking(ctx, b.ID)
	if err != nil && !errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, err
	}
	if latest != nil {
		switch latest.Status {
		case payment.StatusSuccess:
			return nil, payment.ErrAlreadyPaid
		case payment.StatusPending:
			if !latest.IsStale(now, h.pendingTimeout()) {
				return nil, payment.ErrPaymentInProgress
			}
			h.logger().Warn("failing stale pending payment", "payment_id", latest.ID, "booking_id", b.ID, "initiated_at", latest.InitiatedAt)
			latest.MarkFailed("stale pending attempt", now)
			if err := repo.Save(ctx, latest); err != nil {
				return nil, err
			}
			if err := outbox.Record(ctx, h.Outbox, h.Encoder, latest); err != nil {
				return nil, err
			}
		case payment.StatusFailed:
			if err := latest.Reuse(amount, method, now); err != nil {
				return nil, err
			}
			if err := repo.Save(ctx, latest); err != nil {
				return nil, err
			}
			h.logger().Info("reusing failed payment", "payment_id", latest.ID, "booking_id", b.ID)
			return latest, nil
		}
	}
	p, err := payment.New(payment.CreateParams{
		ID:        payment.PaymentID(h.newID()),
		BookingID: b.ID,
		Amount:    amount,
		Method:    method,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}
	if err := repo.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// recover handles a lost insert race: the winner's payment is re-read and
// returned as the authoritative attempt.
func (h *ProcessPaymentHandler) recover(ctx context.Context, cmd ProcessPaymentCommand) (attempt, error) {
	var att attempt
	err := support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		latest, err := unit.Payments().LatestByBooking(ctx, domainbooking.BookingID(cmd.BookingID))
		if err != nil {
			return err
		}
		switch latest.Status {
		case payment.StatusSuccess:
			return payment.ErrAlreadyPaid
		case payment.StatusFailed:
			return payment.ErrPaymentInProgress
		}
		att = attempt{payment: latest, inFlight: true}
		return nil
	})
	if err == nil {
		h.logger().Info("recovered from concurrent payment insert", "booking_id", cmd.BookingID, "payment_id", att.payment.ID)
	}
	return att, err
}

// initiate calls the gateway with its own deadline. The call is detached from
// the request context so a client disconnect does not abandon it.
func (h *ProcessPaymentHandler) initiate(ctx context.Context, gw policies.Gateway, cmd ProcessPaymentCommand, att attempt) (policies.GatewayResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.gatewayTimeout())
	defer cancel()
	started := time.Now()
	result, err := gw.Initiate(callCtx, policies.GatewayRequest{
		Amount:            att.payment.Amount,
		PayerContact:      cmd.Contact,
		MerchantReference: string(att.payment.ID),
		InitiatedAt:       att.payment.InitiatedAt,
		BookingID:         att.booking.ID,
		ReturnURL:         cmd.ReturnURL,
		CancelURL:         cmd.CancelURL,
	})
	if err != nil {
		h.logger().Warn("gateway initiation failed",
			"payment_id", att.payment.ID, "method", att.payment.Method, "duration", time.Since(started), "error", err)
		return policies.GatewayResult{}, apperr.Wrap(apperr.ErrGateway, err)
	}
	return result, nil
}

// attach stores the gateway reference; the payment stays PENDING until a callback.
func (h *ProcessPaymentHandler) attach(ctx context.Context, att attempt, result policies.GatewayResult) (*dto.PaymentHandle, error) {
	release, err := h.lock(ctx, att.booking.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := h.now()
	var stored *payment.Payment
	err = support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payments().ByID(ctx, att.payment.ID)
		if err != nil {
			return err
		}
		if err := p.AttachExternalID(result.ExternalID, now); err != nil {
			if !errors.Is(err, payment.ErrExternalIDAssigned) {
				return err
			}
			h.logger().Warn("gateway returned a second external id, keeping the first",
				"payment_id", p.ID, "external_id", p.ExternalID, "returned_external_id", result.ExternalID)
		}
		if err := unit.Payments().Save(ctx, p); err != nil {
			return err
		}
		stored = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.logger().Info("payment initiated", "payment_id", stored.ID, "booking_id", stored.BookingID, "method", stored.Method, "external_id", stored.ExternalID)
	handle := handleFor(stored)
	handle.RedirectURL = result.RedirectURL
	handle.ClientSecret = result.ClientSecret
	handle.Message = result.Message
	if len(result.Raw) > 0 {
		handle.Metadata = result.Raw
	}
	return &handle, nil
}

// fail marks the attempt FAILED and returns the booking to PENDING, then
// surfaces the gateway error.
func (h *ProcessPaymentHandler) fail(ctx context.Context, att attempt, gwErr error) error {
	release, err := h.lock(ctx, att.booking.ID)
	if err != nil {
		h.logger().Error("could not record gateway failure", "payment_id", att.payment.ID, "error", err)
		return errors.Join(gwErr, err)
	}
	defer release()

	now := h.now()
	reason := gwErr.Error()
	err = support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payments().ByID(ctx, att.payment.ID)
		if err != nil {
			return err
		}
		b, err := unit.Bookings().ByIDForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if p.Status == payment.StatusPending {
			p.MarkFailed(reason, now)
			if err := unit.Payments().Save(ctx, p); err != nil {
				return err
			}
		}
		if b.State == domainbooking.StateWaitingMoney {
			if err := b.RevertToPending(reason, now); err != nil {
				return err
			}
			if err := unit.Bookings().Save(ctx, b); err != nil {
				return err
			}
		}
		return outbox.Record(ctx, h.Outbox, h.Encoder, p, b)
	})
	if err != nil {
		h.logger().Error("could not record gateway failure", "payment_id", att.payment.ID, "error", err)
		return errors.Join(gwErr, err)
	}
	return gwErr
}

// lock takes the booking lock for one unit. Without a Locker the units rely on
// row locks alone.
func (h *ProcessPaymentHandler) lock(ctx context.Context, id domainbooking.BookingID) (func(), error) {
	if h.Locker == nil {
		return func() {}, nil
	}
	return h.Locker.Acquire(ctx, policies.BookingLockKey(id))
}

func handleFor(p *payment.Payment) dto.PaymentHandle {
	return dto.PaymentHandle{
		PaymentID:  string(p.ID),
		BookingID:  string(p.BookingID),
		Status:     string(p.Status),
		Method:     string(p.Method),
		Amount:     dto.MoneyFrom(p.Amount),
		ExternalID: p.ExternalID,
	}
}

func (h *ProcessPaymentHandler) pendingTimeout() time.Duration {
	if h.PendingTimeout > 0 {
		return h.PendingTimeout
	}
	return DefaultPendingTimeout
}

func (h *ProcessPaymentHandler) gatewayTimeout() time.Duration {
	if h.GatewayTimeout > 0 {
		return h.GatewayTimeout
	}
	return DefaultGatewayTimeout
}

func (h *ProcessPaymentHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *ProcessPaymentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *ProcessPaymentHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var (
	_ commands.Handler[ProcessPaymentCommand, *dto.PaymentHandle] = (*ProcessPaymentHandler)(nil)
	_ middleware.IdempotentCommand                                = ProcessPaymentCommand{}
	_ middleware.SelfManagedCommand                               = ProcessPaymentCommand{}
)
