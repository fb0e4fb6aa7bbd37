package payments

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
)

const reconcilePaymentKey = "payments.reconcile"

var errMethodMismatch = errors.New("payments: verdict reported by another gateway")

// ReconcilePaymentCommand applies a gateway verdict. Method, when set, is the
// gateway family that reported it and must match the payment's method. Source
// names the channel it came from and is only logged.
type ReconcilePaymentCommand struct {
	ExternalID       string `validate:"required"`
	Success          bool
	GatewayReference string
	Note             string
	Method           string
	Source           string
}

func (c ReconcilePaymentCommand) Key() string          { return reconcilePaymentKey }
func (c ReconcilePaymentCommand) ManagesOwnUnit() bool { return true }

type ReconcilePaymentHandler struct {
	UoWFactory uow.UoWFactory
	Locker     policies.Locker
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handle never fails for unknown external ids: late callbacks for superseded
// attempts and foreign payloads are acknowledged with Matched=false.
func (h *ReconcilePaymentHandler) Handle(ctx context.Context, cmd ReconcilePaymentCommand) (*dto.ReconcileResult, error) {
	externalID := strings.TrimSpace(cmd.ExternalID)
	if externalID == "" {
		h.logger().Warn("reconcile without external id ignored", "source", cmd.Source)
		return &dto.ReconcileResult{}, nil
	}

	var bookingID domainbooking.BookingID
	err := support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{ReadOnly: true}, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payments().ByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if cmd.Method != "" && !strings.EqualFold(string(p.Method), cmd.Method) {
			return errMethodMismatch
		}
		bookingID = p.BookingID
		return nil
	})
	if errors.Is(err, payment.ErrPaymentNotFound) {
		h.logger().Info("no payment for external id, acknowledging", "external_id", externalID, "source", cmd.Source)
		return &dto.ReconcileResult{}, nil
	}
	if errors.Is(err, errMethodMismatch) {
		h.logger().Warn("verdict from another gateway family ignored",
			"external_id", externalID, "reported_by", cmd.Method, "source", cmd.Source)
		return &dto.ReconcileResult{}, nil
	}
	if err != nil {
		return nil, err
	}

	if h.Locker != nil {
		release, err := h.Locker.Acquire(ctx, policies.BookingLockKey(bookingID))
		if err != nil {
			return nil, err
		}
		defer release()
	}

	now := h.now()
	result := &dto.ReconcileResult{}
	err = support.InNewUnit(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		// Re-read under the lock: a retry may have reused the payment and
		// dropped this external id in between.
		p, err := unit.Payments().ByExternalID(ctx, externalID)
		if err != nil {
			return err
		}
		if cmd.Method != "" && !strings.EqualFold(string(p.Method), cmd.Method) {
			return errMethodMismatch
		}
		b, err := unit.Bookings().ByIDForUpdate(ctx, p.BookingID)
		if err != nil {
			return err
		}
		result.Matched = true
		result.PaymentID = string(p.ID)
		result.BookingID = string(b.ID)

		if !p.Resolve(cmd.Success, cmd.GatewayReference, cmd.Note, now) {
			result.PaymentStatus = string(p.Status)
			result.BookingStatus = string(b.State)
			return nil
		}
		if err := unit.Payments().Save(ctx, p); err != nil {
			return err
		}
		result.Changed = true
		if err := h.applyToBooking(ctx, unit, b, p, cmd, now); err != nil {
			return err
		}
		result.PaymentStatus = string(p.Status)
		result.BookingStatus = string(b.State)
		return outbox.Record(ctx, h.Outbox, h.Encoder, p, b)
	})
	if errors.Is(err, payment.ErrPaymentNotFound) || errors.Is(err, errMethodMismatch) {
		h.logger().Info("payment superseded before reconcile, acknowledging", "external_id", externalID, "source", cmd.Source)
		return &dto.ReconcileResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	h.logger().Info("payment reconciled",
		"external_id", externalID, "payment_id", result.PaymentID, "booking_id", result.BookingID,
		"payment_status", result.PaymentStatus, "booking_status", result.BookingStatus, "changed", result.Changed, "source", cmd.Source)
	return result, nil
}

// applyToBooking moves the booking after a changed verdict. Terminal bookings
// keep their state. A failure only reverts the booking when it comes from the
// booking's latest payment, so a late failure of a superseded attempt cannot
// disturb a newer one.
func (h *ReconcilePaymentHandler) applyToBooking(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, p *payment.Payment, cmd ReconcilePaymentCommand, now time.Time) error {
	if b.State.Terminal() {
		h.logger().Warn("verdict for terminal booking recorded on payment only",
			"booking_id", b.ID, "booking_status", b.State, "payment_id", p.ID, "success", cmd.Success)
		return nil
	}
	before := b.State
	if cmd.Success {
		if err := b.ConfirmPayment(string(p.ID), now); err != nil {
			return err
		}
	} else {
		latest, err := unit.Payments().LatestByBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if latest.ID != p.ID {
			h.logger().Info("failure for superseded payment leaves booking unchanged", "booking_id", b.ID, "payment_id", p.ID, "latest_payment_id", latest.ID)
			return nil
		}
		if err := b.RevertToPending(failureReason(cmd), now); err != nil {
			return err
		}
	}
	if b.State == before {
		return nil
	}
	return unit.Bookings().Save(ctx, b)
}

func failureReason(cmd ReconcilePaymentCommand) string {
	if note := strings.TrimSpace(cmd.Note); note != "" {
		return "gateway reported failure: " + note
	}
	return "gateway reported failure"
}

func (h *ReconcilePaymentHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *ReconcilePaymentHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var (
	_ commands.Handler[ReconcilePaymentCommand, *dto.ReconcileResult] = (*ReconcilePaymentHandler)(nil)
	_ middleware.SelfManagedCommand                                   = ReconcilePaymentCommand{}
)
