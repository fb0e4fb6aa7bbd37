package dto

import (
	"time"

	"stayhub/internal/domain/payment"
)

type PaymentView struct {
	ID          string     `json:"id"`
	BookingID   string     `json:"booking_id"`
	Amount      MoneyDTO   `json:"amount"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	ExternalID  string     `json:"external_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func PaymentFrom(p *payment.Payment) PaymentView {
	view := PaymentView{
		ID:         string(p.ID),
		BookingID:  string(p.BookingID),
		Amount:     MoneyFrom(p.Amount),
		Method:     string(p.Method),
		Status:     string(p.Status),
		ExternalID: p.ExternalID,
		CreatedAt:  p.CreatedAt,
	}
	if !p.CompletedAt.IsZero() {
		completed := p.CompletedAt
		view.CompletedAt = &completed
	}
	return view
}

// PaymentHandle is returned by payment initiation. Gateway specific fields
// are set only by the adapter that produced them.
type PaymentHandle struct {
	PaymentID    string            `json:"payment_id"`
	BookingID    string            `json:"booking_id"`
	Status       string            `json:"status"`
	Method       string            `json:"method"`
	Amount       MoneyDTO          `json:"amount"`
	ExternalID   string            `json:"external_id,omitempty"`
	RedirectURL  string            `json:"redirect_url,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Message      string            `json:"message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// PaidBooking pairs a booking with the payment that settled it.
type PaidBooking struct {
	Booking BookingView `json:"booking"`
	Payment PaymentView `json:"payment"`
}

type PaidBookingCollection struct {
	Items []PaidBooking `json:"items"`
}

type PaidGuest struct {
	GuestID  string        `json:"guest_id"`
	Bookings []PaidBooking `json:"bookings"`
	Total    MoneyDTO      `json:"total"`
}

type PaidGuestCollection struct {
	Items []PaidGuest `json:"items"`
}

type ReconcileResult struct {
	Matched       bool   `json:"matched"`
	Changed       bool   `json:"changed"`
	PaymentID     string `json:"payment_id,omitempty"`
	BookingID     string `json:"booking_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
	BookingStatus string `json:"booking_status,omitempty"`
}
