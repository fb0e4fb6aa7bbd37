package middleware

import (
	"context"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/outbox"
)

// RelayNudge wakes the outbox relay after a command succeeds, so committed
// events do not wait for the next poll. Chain it ahead of Transaction so the
// nudge follows the commit.
func RelayNudge(n outbox.Notifier) CommandMiddleware {
	if n == nil {
		panic("middleware: notifier required")
	}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err == nil {
				n.Notify()
			}
			return res, err
		})
	}
}
