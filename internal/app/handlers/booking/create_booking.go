package booking

import (
	"context"
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
	"stayhub/internal/domain/availability"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/daterange"
)

const createBookingKey = "booking.create"

type CreateBookingCommand struct {
	BookingID       string
	Caller          auth.Principal
	PropertyID      string    `validate:"required"`
	Start           time.Time `validate:"required"`
	End             time.Time `validate:"required"`
	IdempotencyKeyV string
}

func (c CreateBookingCommand) Key() string               { return createBookingKey }
func (c CreateBookingCommand) Principal() auth.Principal { return c.Caller }
func (c CreateBookingCommand) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleGuest} }
func (c CreateBookingCommand) IdempotencyKey() string    { return c.IdempotencyKeyV }
func (c CreateBookingCommand) ResultPrototype() any      { return &dto.BookingView{} }
func (c CreateBookingCommand) LockKey() string {
	return policies.PropertyLockKey(property.PropertyID(c.PropertyID))
}

type CreateBookingHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handle re-checks availability inside the unit that inserts the booking. The
// property row lock (or the property lock key) keeps concurrent creates for the
// same property from both passing the check.
func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.BookingView, error) {
	if err := auth.Require(cmd.Caller, cmd.AllowedRoles()...); err != nil {
		return nil, err
	}
	dr, err := daterange.New(cmd.Start, cmd.End)
	if err != nil {
		return nil, domainbooking.ErrInvalidRange
	}
	if err := domainbooking.CheckStay(dr); err != nil {
		return nil, err
	}
	id := cmd.BookingID
	if id == "" {
		id = uuid.NewString()
	}
	now := nowFunc(h.Now)

	var created *domainbooking.Booking
	err = support.Within(ctx, h.UoWFactory, uow.TxOptions{}, func(ctx context.Context, unit uow.UnitOfWork) error {
		prop, err := unit.Properties().ByIDForUpdate(ctx, property.PropertyID(cmd.PropertyID))
		if err != nil {
			return err
		}
		conflicts, err := availability.NewChecker(unit.Bookings()).Conflicts(ctx, prop.ID, dr)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			h.logger().Info("booking rejected, dates taken",
				"property_id", prop.ID, "range", dr.String(), "conflicting_booking_id", conflicts[0].ID)
			return domainbooking.ErrDatesUnavailable
		}
		b, err := domainbooking.NewBooking(domainbooking.CreateParams{
			ID:         domainbooking.BookingID(id),
			PropertyID: prop.ID,
			GuestID:    cmd.Caller.UserID,
			HostID:     prop.HostID,
			Range:      dr,
			Total:      prop.Quote(dr.Nights()),
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := unit.Bookings().Insert(ctx, b); err != nil {
			return err
		}
		created = b
		return outbox.Record(ctx, h.Outbox, h.Encoder, b)
	})
	if err != nil {
		return nil, err
	}
	h.logger().Info("booking created", "booking_id", created.ID, "property_id", created.PropertyID, "guest_id", created.GuestID, "nights", created.Nights())
	view := dto.BookingFrom(created)
	return &view, nil
}

func (h *CreateBookingHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ commands.Handler[CreateBookingCommand, *dto.BookingView] = (*CreateBookingHandler)(nil)
var _ middleware.IdempotentCommand = CreateBookingCommand{}
var _ middleware.LockedCommand = CreateBookingCommand{}
var _ middleware.GuardedMessage = CreateBookingCommand{}
