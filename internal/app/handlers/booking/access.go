package booking

import (
	"time"

	"stayhub/internal/domain/auth"
	domainbooking "stayhub/internal/domain/booking"
)

func isGuest(p auth.Principal, b *domainbooking.Booking) bool {
	return p.UserID != "" && p.UserID == b.GuestID
}

func isHost(p auth.Principal, b *domainbooking.Booking) bool {
	return p.UserID != "" && p.UserID == string(b.HostID)
}

// canView lets the guest, the property host and admins read a booking.
func canView(p auth.Principal, b *domainbooking.Booking) error {
	if p.IsAdmin() || isGuest(p, b) || isHost(p, b) {
		return nil
	}
	return auth.ErrNotOwner
}

func nowFunc(clock func() time.Time) time.Time {
	if clock != nil {
		return clock().UTC()
	}
	return time.Now().UTC()
}
