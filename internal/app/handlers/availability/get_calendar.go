package availability

import (
	"context"
	"fmt"
	"time"

	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/queries"
	"stayhub/internal/app/uow"
	domainavailability "stayhub/internal/domain/availability"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
)

const (
	getCalendarKey = "availability.calendar"

	MaxCalendarNights = 366
)

var ErrWindowTooLong = fmt.Errorf("%w: calendar window is limited to %d nights", apperr.ErrValidation, MaxCalendarNights)

// GetCalendarQuery asks for the dates taken on a property within [From, To).
type GetCalendarQuery struct {
	PropertyID string    `validate:"required"`
	From       time.Time `validate:"required"`
	To         time.Time `validate:"required"`
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type GetCalendarHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	window, err := daterange.New(q.From, q.To)
	if err != nil {
		return dto.Calendar{}, domainbooking.ErrInvalidRange
	}
	if window.Nights() > MaxCalendarNights {
		return dto.Calendar{}, ErrWindowTooLong
	}

	var calendar dto.Calendar
	err = support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		prop, err := unit.Properties().ByID(ctx, property.PropertyID(q.PropertyID))
		if err != nil {
			return err
		}
		taken, err := domainavailability.NewChecker(unit.Bookings()).Conflicts(ctx, prop.ID, window)
		if err != nil {
			return err
		}
		calendar = dto.CalendarFrom(string(prop.ID), window, taken)
		return nil
	})
	return calendar, err
}

var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
