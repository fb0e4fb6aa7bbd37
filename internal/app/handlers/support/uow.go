package support

import (
	"context"

	"stayhub/internal/app/uow"
)

// Within runs fn against the unit already bound to ctx. When there is none it
// begins a unit that is committed if fn succeeds and rolled back otherwise.
func Within(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	if unit, ok := uow.FromContext(ctx); ok {
		return fn(ctx, unit)
	}
	return uow.Run(ctx, factory, opts, fn)
}

// InNewUnit always begins its own unit, ignoring any unit bound to ctx.
func InNewUnit(ctx context.Context, factory uow.UoWFactory, opts uow.TxOptions, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	return uow.Run(ctx, factory, opts, fn)
}

// Read runs fn in a read-only unit.
func Read(ctx context.Context, factory uow.UoWFactory, fn func(ctx context.Context, unit uow.UnitOfWork) error) error {
	return Within(ctx, factory, uow.TxOptions{ReadOnly: true}, fn)
}
