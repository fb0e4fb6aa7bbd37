package dto

import (
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/money"
)

// MoneyDTO carries both minor units and the exact decimal string.
type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func MoneyFrom(m money.Money) MoneyDTO {
	return MoneyDTO{Amount: m.Amount, Value: m.Decimal(), Currency: m.Currency}
}

type BookingView struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	GuestID    string    `json:"guest_id"`
	HostID     string    `json:"host_id"`
	CheckIn    string    `json:"check_in"`
	CheckOut   string    `json:"check_out"`
	Nights     int       `json:"nights"`
	Status     string    `json:"status"`
	Total      MoneyDTO  `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func BookingFrom(b *booking.Booking) BookingView {
	return BookingView{
		ID:         string(b.ID),
		PropertyID: string(b.PropertyID),
		GuestID:    b.GuestID,
		HostID:     string(b.HostID),
		CheckIn:    b.Range.CheckIn.Format(time.DateOnly),
		CheckOut:   b.Range.CheckOut.Format(time.DateOnly),
		Nights:     b.Nights(),
		Status:     string(b.State),
		Total:      MoneyFrom(b.Total),
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

func BookingsFrom(items []*booking.Booking) BookingCollection {
	out := BookingCollection{Items: make([]BookingView, 0, len(items))}
	for _, b := range items {
		out.Items = append(out.Items, BookingFrom(b))
	}
	return out
}

type PriceQuote struct {
	PropertyID  string   `json:"property_id"`
	CheckIn     string   `json:"check_in"`
	CheckOut    string   `json:"check_out"`
	Nights      int      `json:"nights"`
	NightlyRate MoneyDTO `json:"nightly_rate"`
	Total       MoneyDTO `json:"total"`
	Available   bool     `json:"available"`
}
