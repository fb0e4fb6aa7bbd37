package middleware

import (
	"context"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/uow"
)

// TxOptionsProvider picks unit options per command. Nil means defaults.
type TxOptionsProvider func(cmd commands.Command) uow.TxOptions

// SelfManagedCommand is implemented by commands whose handlers open several
// units on their own, for example around an outbound gateway call.
type SelfManagedCommand interface {
	commands.Command
	ManagesOwnUnit() bool
}

// Transaction runs the rest of the chain inside one unit of work bound to ctx.
// The unit commits only when the handler returns no error.
func Transaction(factory uow.UoWFactory, opts TxOptionsProvider) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if sm, ok := cmd.(SelfManagedCommand); ok && sm.ManagesOwnUnit() {
				return next.Dispatch(ctx, cmd)
			}
			var txOpts uow.TxOptions
			if opts != nil {
				txOpts = opts(cmd)
			}
			var res any
			err := uow.Run(ctx, factory, txOpts, func(ctx context.Context, _ uow.UnitOfWork) error {
				var err error
				res, err = next.Dispatch(ctx, cmd)
				return err
			})
			if err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
