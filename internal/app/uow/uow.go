// Package uow defines the transaction boundary that handlers and the command
// pipeline share. A unit travels in the context once bound.
package uow

import (
	"context"
	"errors"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/property"
)

var ErrNoFactory = errors.New("uow: no factory configured")

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Properties() property.Repository
	Bookings() booking.Repository
	Payments() payment.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries. Read-only units are never
// committed.
type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units that carry driver state (sessions,
// transactions) which repositories read back from the context.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

type boundKey struct{}

// Bind returns ctx carrying unit and any driver state it injects.
func Bind(ctx context.Context, unit UnitOfWork) context.Context {
	if injector, ok := unit.(ContextInjector); ok {
		ctx = injector.InjectContext(ctx)
	}
	return context.WithValue(ctx, boundKey{}, unit)
}

// FromContext returns the unit bound to ctx, if any.
func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(boundKey{}).(UnitOfWork)
	return unit, ok && unit != nil
}

// Run begins a unit, binds it and hands the bound context to fn. The unit is
// committed when fn succeeds and rolled back otherwise.
func Run(ctx context.Context, factory UoWFactory, opts TxOptions, fn func(ctx context.Context, unit UnitOfWork) error) error {
	if factory == nil {
		return ErrNoFactory
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return err
	}
	bound := Bind(ctx, unit)
	done := false
	defer func() {
		if !done {
			_ = unit.Rollback(bound)
		}
	}()
	if err := fn(bound, unit); err != nil {
		return err
	}
	if opts.ReadOnly {
		return nil
	}
	if err := unit.Commit(bound); err != nil {
		return err
	}
	done = true
	return nil
}
