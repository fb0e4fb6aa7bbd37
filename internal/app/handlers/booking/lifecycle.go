package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/middleware"
	"stayhub/internal/app/outbox"
	"stayhub/internal/app/policies"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/auth"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
)

const (
	cancelBookingKey     = "booking.cancel"
	confirmBookingKey    = "booking.confirm"
	markPaymentFailedKey = "booking.mark_payment_failed"
)

type CancelBookingCommand struct {
	BookingID string `validate:"required"`
	Caller    auth.Principal
}

func (c CancelBookingCommand) Key() string               { return cancelBookingKey }
func (c CancelBookingCommand) Principal() auth.Principal { return c.Caller }
func (c CancelBookingCommand) AllowedRoles() []auth.Role {
	return []auth.Role{auth.RoleGuest, auth.RoleHost, auth.RoleAdmin}
}
func (c CancelBookingCommand) LockKey() string {
	return policies.BookingLockKey(domainbooking.BookingID(c.BookingID))
}

type ConfirmBookingCommand struct {
	BookingID string `validate:"required"`
	Caller    auth.Principal
}

func (c ConfirmBookingCommand) Key() string               { return confirmBookingKey }
func (c ConfirmBookingCommand) Principal() auth.Principal { return c.Caller }
func (c ConfirmBookingCommand) AllowedRoles() []auth.Role {
	return []auth.Role{auth.RoleHost, auth.RoleAdmin}
}
func (c ConfirmBookingCommand) LockKey() string {
	return policies.BookingLockKey(domainbooking.BookingID(c.BookingID))
}

type MarkPaymentFailedCommand struct {
	BookingID string `validate:"required"`
	Caller    auth.Principal
}

func (c MarkPaymentFailedCommand) Key() string               { return markPaymentFailedKey }
func (c MarkPaymentFailedCommand) Principal() auth.Principal { return c.Caller }
func (c MarkPaymentFailedCommand) AllowedRoles() []auth.Role {
	return []auth.Role{auth.RoleGuest, auth.RoleHost, auth.RoleAdmin}
}
func (c MarkPaymentFailedCommand) LockKey() string {
	return policies.BookingLockKey(domainbooking.BookingID(c.BookingID))
}

// LifecycleHandler serves the booking state changes requested by people:
// cancel, manual confirm and mark-payment-failed.
type LifecycleHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

func (h *LifecycleHandler) Cancel(ctx context.Context, cmd CancelBookingCommand) (*dto.BookingView, error) {
	if err := auth.Require(cmd.Caller, cmd.AllowedRoles()...); err != nil {
		return nil, err
	}
	return h.mutate(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, now time.Time) error {
		if !cmd.Caller.IsAdmin() && !isGuest(cmd.Caller, b) && !isHost(cmd.Caller, b) {
			return auth.ErrNotOwner
		}
		return b.Cancel(cmd.Caller.UserID, now)
	})
}

// Confirm is the manual override; it does not look at payments.
func (h *LifecycleHandler) Confirm(ctx context.Context, cmd ConfirmBookingCommand) (*dto.BookingView, error) {
	if err := auth.Require(cmd.Caller, cmd.AllowedRoles()...); err != nil {
		return nil, err
	}
	return h.mutate(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, now time.Time) error {
		if !cmd.Caller.IsAdmin() && !isHost(cmd.Caller, b) {
			return auth.ErrNotOwner
		}
		return b.Confirm(cmd.Caller.UserID, now)
	})
}

// MarkPaymentFailed resets the booking to PENDING and fails its most recent
// payment so the guest can pay again. A booking whose latest payment
// succeeded is refused with ErrAlreadyPaid.
func (h *LifecycleHandler) MarkPaymentFailed(ctx context.Context, cmd MarkPaymentFailedCommand) (*dto.BookingView, error) {
	if err := auth.Require(cmd.Caller, cmd.AllowedRoles()...); err != nil {
		return nil, err
	}
	return h.mutate(ctx, cmd.BookingID, func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, now time.Time) error {
		if !cmd.Caller.IsAdmin() && !isGuest(cmd.Caller, b) && !isHost(cmd.Caller, b) {
			return auth.ErrNotOwner
		}
		latest, err := unit.Payments().LatestByBooking(ctx, b.ID)
		switch {
		case errors.Is(err, payment.ErrPaymentNotFound):
			latest = nil
		case err != nil:
			return err
		}
		if latest != nil && latest.Status == payment.StatusSuccess {
			h.logger().Warn("mark-failed refused for paid booking", "booking_id", b.ID, "payment_id", latest.ID, "caller", cmd.Caller.UserID)
			return payment.ErrAlreadyPaid
		}
		if err := b.RevertToPending("payment marked failed by "+cmd.Caller.UserID, now); err != nil {
			return err
		}
		if latest == nil {
			return nil
		}
		latest.MarkFailed("marked failed by "+cmd.Caller.UserID, now)
		if err := unit.Payments().Save(ctx, latest); err != nil {
			return err
		}
		return outbox.Record(ctx, h.Outbox, h.Encoder, latest)
	})
}

type bookingMutation func(ctx context.Context, unit uow.UnitOfWork, b *domainbooking.Booking, now time.Time) error

func (h *LifecycleHandler) mutate(ctx context.Context, id string, fn bookingMutation) (*dto.BookingView, error) {
	now := nowFunc(h.Now)
	var view dto.BookingView
	err := support.Within(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByIDForUpdate(ctx, domainbooking.BookingID(id))
		if err != nil {
			return err
		}
		before := b.State
		if err := fn(ctx, unit, b, now); err != nil {
			return err
		}
		if b.State != before {
			if err := unit.Bookings().Save(ctx, b); err != nil {
				return err
			}
			h.logger().Info("booking state changed", "booking_id", b.ID, "from", before, "to", b.State)
		}
		view = dto.BookingFrom(b)
		return outbox.Record(ctx, h.Outbox, h.Encoder, b)
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (h *LifecycleHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var (
	_ middleware.LockedCommand  = CancelBookingCommand{}
	_ middleware.LockedCommand  = ConfirmBookingCommand{}
	_ middleware.LockedCommand  = MarkPaymentFailedCommand{}
	_ middleware.GuardedMessage = MarkPaymentFailedCommand{}
)
