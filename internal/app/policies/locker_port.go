package policies

import (
	"context"
	"fmt"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/property"
	"stayhub/internal/domain/shared/apperr"
)

var ErrLockTimeout = fmt.Errorf("%w: resource is busy, retry later", apperr.ErrConflict)

// Locker serializes work on a key across request handlers. Acquire blocks
// until the lock is held or ctx is done, in which case it returns ErrLockTimeout.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func PropertyLockKey(id property.PropertyID) string {
	return "property:" + string(id)
}

func BookingLockKey(id booking.BookingID) string {
	return "booking:" + string(id)
}
