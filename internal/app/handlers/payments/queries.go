package payments

import (
	"context"
	"log/slog"
	"sort"

	"stayhub/internal/app/dto"
	"stayhub/internal/app/handlers/support"
	"stayhub/internal/app/uow"
	"stayhub/internal/domain/auth"
	domainbooking "stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/money"
)

const (
	getPaymentKey         = "payments.get"
	listPaidForGuestKey   = "payments.list_paid_guest"
	listPaidGuestsHostKey = "payments.list_paid_guests_host"
	listPaidBookingsKey   = "payments.list_paid"
)

type GetPaymentQuery struct {
	Caller    auth.Principal
	PaymentID string `validate:"required"`
}

func (q GetPaymentQuery) Key() string               { return getPaymentKey }
func (q GetPaymentQuery) Principal() auth.Principal { return q.Caller }
func (q GetPaymentQuery) AllowedRoles() []auth.Role { return nil }

type ListPaidBookingsForGuestQuery struct {
	Caller auth.Principal
}

func (q ListPaidBookingsForGuestQuery) Key() string               { return listPaidForGuestKey }
func (q ListPaidBookingsForGuestQuery) Principal() auth.Principal { return q.Caller }
func (q ListPaidBookingsForGuestQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleGuest} }

type ListPaidGuestsForHostQuery struct {
	Caller auth.Principal
}

func (q ListPaidGuestsForHostQuery) Key() string               { return listPaidGuestsHostKey }
func (q ListPaidGuestsForHostQuery) Principal() auth.Principal { return q.Caller }
func (q ListPaidGuestsForHostQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleHost} }

type ListPaidBookingsQuery struct {
	Caller auth.Principal
}

func (q ListPaidBookingsQuery) Key() string               { return listPaidBookingsKey }
func (q ListPaidBookingsQuery) Principal() auth.Principal { return q.Caller }
func (q ListPaidBookingsQuery) AllowedRoles() []auth.Role { return []auth.Role{auth.RoleAdmin} }

type QueryHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

// Get returns a payment to the booking's guest, its host or an admin.
func (h *QueryHandler) Get(ctx context.Context, q GetPaymentQuery) (dto.PaymentView, error) {
	if err := auth.Require(q.Caller); err != nil {
		return dto.PaymentView{}, err
	}
	var view dto.PaymentView
	err := support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		p, err := unit.Payments().ByID(ctx, payment.PaymentID(q.PaymentID))
		if err != nil {
			return err
		}
		b, err := unit.Bookings().ByID(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if !q.Caller.IsAdmin() && q.Caller.UserID != b.GuestID && q.Caller.UserID != string(b.HostID) {
			return auth.ErrNotOwner
		}
		view = dto.PaymentFrom(p)
		return nil
	})
	return view, err
}

func (h *QueryHandler) ListPaidForGuest(ctx context.Context, q ListPaidBookingsForGuestQuery) (dto.PaidBookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.PaidBookingCollection{}, err
	}
	items, err := h.paid(ctx, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListByGuest(ctx, q.Caller.UserID)
	})
	return dto.PaidBookingCollection{Items: items}, err
}

// ListPaidGuestsForHost groups the host's paid bookings by guest.
func (h *QueryHandler) ListPaidGuestsForHost(ctx context.Context, q ListPaidGuestsForHostQuery) (dto.PaidGuestCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.PaidGuestCollection{}, err
	}
	items, err := h.paid(ctx, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListByHost(ctx, property.HostID(q.Caller.UserID))
	})
	if err != nil {
		return dto.PaidGuestCollection{}, err
	}
	byGuest := map[string]*dto.PaidGuest{}
	totals := map[string]money.Money{}
	var order []string
	for _, item := range items {
		g, ok := byGuest[item.Booking.GuestID]
		if !ok {
			g = &dto.PaidGuest{GuestID: item.Booking.GuestID}
			byGuest[item.Booking.GuestID] = g
			order = append(order, item.Booking.GuestID)
		}
		g.Bookings = append(g.Bookings, item)
		amount := money.Money{Amount: item.Payment.Amount.Amount, Currency: item.Payment.Amount.Currency}
		if sum, ok := totals[g.GuestID]; ok {
			if added, err := sum.Add(amount); err == nil {
				totals[g.GuestID] = added
			}
		} else {
			totals[g.GuestID] = amount
		}
	}
	out := dto.PaidGuestCollection{Items: make([]dto.PaidGuest, 0, len(order))}
	for _, id := range order {
		g := byGuest[id]
		g.Total = dto.MoneyFrom(totals[id])
		out.Items = append(out.Items, *g)
	}
	return out, nil
}

func (h *QueryHandler) ListPaid(ctx context.Context, q ListPaidBookingsQuery) (dto.PaidBookingCollection, error) {
	if err := auth.Require(q.Caller, q.AllowedRoles()...); err != nil {
		return dto.PaidBookingCollection{}, err
	}
	var items []dto.PaidBooking
	err := support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		succeeded, err := unit.Payments().ListByStatus(ctx, payment.StatusSuccess)
		if err != nil {
			return err
		}
		for _, p := range succeeded {
			b, err := unit.Bookings().ByID(ctx, p.BookingID)
			if err != nil {
				return err
			}
			items = append(items, dto.PaidBooking{Booking: dto.BookingFrom(b), Payment: dto.PaymentFrom(p)})
		}
		return nil
	})
	sortPaid(items)
	return dto.PaidBookingCollection{Items: items}, err
}

type bookingLister func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error)

// paid keeps the listed bookings that have a successful payment.
func (h *QueryHandler) paid(ctx context.Context, load bookingLister) ([]dto.PaidBooking, error) {
	var items []dto.PaidBooking
	err := support.Read(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		bookings, err := load(ctx, unit.Bookings())
		if err != nil {
			return err
		}
		for _, b := range bookings {
			payments, err := unit.Payments().ListByBooking(ctx, b.ID)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if p.Status == payment.StatusSuccess {
					items = append(items, dto.PaidBooking{Booking: dto.BookingFrom(b), Payment: dto.PaymentFrom(p)})
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPaid(items)
	return items, nil
}

func sortPaid(items []dto.PaidBooking) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Booking.CreatedAt.After(items[j].Booking.CreatedAt)
	})
}
