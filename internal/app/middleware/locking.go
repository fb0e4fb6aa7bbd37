package middleware

import (
	"context"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/policies"
)

// LockedCommand names the key that must be held while the command runs.
type LockedCommand interface {
	commands.Command
	LockKey() string
}

// Locking serializes commands sharing a lock key. It must sit outside
// Transaction so that the lock covers the whole unit of work.
func Locking(locker policies.Locker) CommandMiddleware {
	if locker == nil {
		panic("middleware: locker required")
	}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			lc, ok := cmd.(LockedCommand)
			if !ok || lc.LockKey() == "" {
				return next.Dispatch(ctx, cmd)
			}
			release, err := locker.Acquire(ctx, lc.LockKey())
			if err != nil {
				return nil, err
			}
			defer release()
			return next.Dispatch(ctx, cmd)
		})
	}
}
