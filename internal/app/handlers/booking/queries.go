package booking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/auth"
	"stayhub/internal/domain/availability"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
	"stayhub/internal/domain/shared/daterange"
)

const (
	getBookingKey          = "booking.get"
	listGuestBookingsKey   = "booking.list_guest"
	listHostBookingsKey    = "booking.list_host"
	listByStateKey         = "booking.list_state"
	listAwaitingPaymentKey = "booking.list_awaiting_payment"
	quotePriceKey          = "booking.quote"

	allStatusesFilterValue = "ALL"
)

type GetBookingQuery struct {
	Caller    auth.Principal
	BookingID string `validate:"required"`
}

func (q GetBookingQuery) Key() string               { return getBookingKey }
func (q GetBookingQuery) Principal() auth.Principal { return q.Caller }
func (q GetBookingQuery) AllowedRoles() []auth.Role { return nil }

type ListGuestBookingsQuery struct {
	Caller auth.Principal
	Status string
}

func (q ListGuestBookingsQuery) Key() string               { return listGuestBookingsKey }
func (q ListGuestBookingsQuery) Principal() auth.Principal { return q.Caller }
func (q ListGuestBookingsQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleGuest} }

type ListHostBookingsQuery struct {
	Caller auth.Principal
	Status string
}

func (q ListHostBookingsQuery) Key() string               { return listHostBookingsKey }
func (q ListHostBookingsQuery) Principal() auth.Principal { return q.Caller }
func (q ListHostBookingsQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleHost} }

type ListBookingsByStateQuery struct {
	Caller auth.Principal
	Status string
}

func (q ListBookingsByStateQuery) Key() string               { return listByStateKey }
func (q ListBookingsByStateQuery) Principal() auth.Principal { return q.Caller }
func (q ListBookingsByStateQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleAdmin} }

// ListAwaitingPaymentQuery lists PENDING bookings without a successful
// payment. Guests see their own, admins see every guest's.
type ListAwaitingPaymentQuery struct {
	Caller auth.Principal
}

func (q ListAwaitingPaymentQuery) Key() string               { return listAwaitingPaymentKey }
func (q ListAwaitingPaymentQuery) Principal() auth.Principal { return q.Caller }
func (q ListAwaitingPaymentQuery) AllowedRoles() []auth.Role {
	return []auth.Role{auth.RoleGuest, auth.RoleAdmin}
}

type QuotePriceQuery struct {
	PropertyID string    `validate:"required"`
	Start      time.Time `validate:"required"`
	End        time.Time `validate:"required"`
}

func (q QuotePriceQuery) Key() string { return quotePriceKey }

type QueryHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *QueryHandler) Get(ctx context.Context, q GetBookingQuery) (dto.BookingView, error) {
	if err := auth.Require(q.Caller); err != nil {
		return dto.BookingView{}, err
	}
	var view dto.BookingView
	err := support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		b, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(q.BookingID))
		if err != nil {
			return err
		}
		if err := canView(q.Caller, b); err != nil {
			return err
		}
		view = dto.BookingFrom(b)
		return nil
	})
	return view, err
}

func (h *QueryHandler) ListGuest(ctx context.Context, q ListGuestBookingsQuery) (dto.BookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.BookingCollection{}, err
	}
	return h.list(ctx, q.Status, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListByGuest(ctx, q.Caller.UserID)
	})
}

func (h *QueryHandler) ListHost(ctx context.Context, q ListHostBookingsQuery) (dto.BookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.BookingCollection{}, err
	}
	return h.list(ctx, q.Status, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListByHost(ctx, property.HostID(q.Caller.UserID))
	})
}

func (h *QueryHandler) ListByState(ctx context.Context, q ListBookingsByStateQuery) (dto.BookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.BookingCollection{}, err
	}
	state, ok := domainbooking.ParseState(q.Status)
	if !ok {
		return dto.BookingCollection{}, apperr.Validation(fmt.Sprintf("unknown booking status %q", q.Status))
	}
	return h.list(ctx, "", func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListByState(ctx, state)
	})
}

func (h *QueryHandler) ListAwaitingPayment(ctx context.Context, q ListAwaitingPaymentQuery) (dto.BookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.BookingCollection{}, err
	}
	var out []*domainbooking.Booking
	err := support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		var (
			candidates []*domainbooking.Booking
			err        error
		)
		if q.Caller.IsAdmin() {
			candidates, err = unit.Bookings().ListByState(ctx, domainbooking.StatePending)
		} else {
			candidates, err = unit.Bookings().ListByGuest(ctx, q.Caller.UserID)
		}
		if err != nil {
			return err
		}
		for _, b := range candidates {
			if b.State != domainbooking.StatePending {
				continue
			}
			paid, err := hasSuccessfulPayment(ctx, unit.Payments(), b.ID)
			if err != nil {
				return err
			}
			if !paid {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return dto.BookingCollection{}, err
	}
	sortNewestFirst(out)
	return dto.BookingsFrom(out), nil
}

// Quote prices a stay without reserving it. Available is advisory.
func (h *QueryHandler) Quote(ctx context.Context, q QuotePriceQuery) (dto.PriceQuote, error) {
	dr, err := daterange.New(q.Start, q.End)
	if err != nil {
		return dto.PriceQuote{}, domainbooking.ErrInvalidRange
	}
	if err := domainbooking.CheckStay(dr); err != nil {
		return dto.PriceQuote{}, err
	}
	var quote dto.PriceQuote
	err = support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		prop, err := unit.Properties().ByID(ctx, property.PropertyID(q.PropertyID))
		if err != nil {
			return err
		}
		free, err := availability.NewChecker(unit.Bookings()).IsAvailable(ctx, prop.ID, dr)
		if err != nil {
			return err
		}
		quote = dto.PriceQuote{
			PropertyID:  string(prop.ID),
			CheckIn:     dr.CheckIn.Format(time.DateOnly),
			CheckOut:    dr.CheckOut.Format(time.DateOnly),
			Nights:      dr.Nights(),
			NightlyRate: dto.MoneyFrom(prop.NightlyRate),
			Total:       dto.MoneyFrom(prop.Quote(dr.Nights())),
			Available:   free,
		}
		return nil
	})
	return quote, err
}

type bookingLister func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error)

func (h *QueryHandler) list(ctx context.Context, status string, load bookingLister) (dto.BookingCollection, error) {
	filter, err := parseStatusFilter(status)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	var out []*domainbooking.Booking
	err = support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		items, err := load(ctx, unit.Bookings())
		if err != nil {
			return err
		}
		for _, b := range items {
			if filter != "" && b.State != filter {
				continue
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return dto.BookingCollection{}, err
	}
	sortNewestFirst(out)
	return dto.BookingsFrom(out), nil
}

// parseStatusFilter returns "" for no filter.
func parseStatusFilter(raw string) (domainbooking.BookingState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, allStatusesFilterValue) {
		return "", nil
	}
	state, ok := domainbooking.ParseState(raw)
	if !ok {
		return "", apperr.Validation(fmt.Sprintf("unknown booking status %q", raw))
	}
	return state, nil
}

func hasSuccessfulPayment(ctx context.Context, repo payment.Repository, id domainbooking.BookingID) (bool, error) {
	payments, err := repo.ListByBooking(ctx, id)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.Status == payment.StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func sortNewestFirst(items []*domainbooking.Booking) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
