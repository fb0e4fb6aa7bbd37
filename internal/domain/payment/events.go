package payment

import (
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/shared/money"
)

type PaymentInitiated struct {
	PaymentID PaymentID
	BookingID booking.BookingID
	Amount    money.Money
	Method    Method
	Reused    bool
	At        time.Time
}

func (e PaymentInitiated) EventName() string     { return "payment.initiated" }
func (e PaymentInitiated) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentInitiated) OccurredAt() time.Time { return e.At }

type PaymentSucceeded struct {
	PaymentID  PaymentID
	BookingID  booking.BookingID
	ExternalID string
	Amount     money.Money
	Note       string
	At         time.Time
}

func (e PaymentSucceeded) EventName() string     { return "payment.succeeded" }
func (e PaymentSucceeded) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentSucceeded) OccurredAt() time.Time { return e.At }

type PaymentFailed struct {
	PaymentID  PaymentID
	BookingID  booking.BookingID
	ExternalID string
	Reason     string
	At         time.Time
}

func (e PaymentFailed) EventName() string     { return "payment.failed" }
func (e PaymentFailed) AggregateID() string   { return string(e.PaymentID) }
func (e PaymentFailed) OccurredAt() time.Time { return e.At }
