package memory

import (
	"sync"
	"time"

	appoutbox "stayhub/internal/app/outbox"
	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
)

// Store is the process-local database behind the memory storage driver.
// Units stage their writes and apply them atomically on Commit.
type Store struct {
	mu         sync.RWMutex
	properties map[property.PropertyID]*property.Property
	bookings   map[booking.BookingID]*booking.Booking
	payments   map[payment.PaymentID]*payment.Payment
	paymentSeq map[payment.PaymentID]int64
	seq        int64
	outbox     []*outboxRow
}

type outboxRow struct {
	record      appoutbox.EventRecord
	state       string
	attempts    int
	nextAttempt time.Time
	claimedBy   string
	lastError   string
}

func NewStore() *Store {
	return &Store{
		properties: make(map[property.PropertyID]*property.Property),
		bookings:   make(map[booking.BookingID]*booking.Booking),
		payments:   make(map[payment.PaymentID]*payment.Payment),
		paymentSeq: make(map[payment.PaymentID]int64),
	}
}
