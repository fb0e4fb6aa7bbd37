package middleware

import (
	"context"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/queries"
	"stayhub/internal/domain/auth"
)

type Validator interface {
	Validate(ctx context.Context, message any) error
}

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// GuardedMessage exposes the caller and the roles allowed to send the message.
type GuardedMessage interface {
	Principal() auth.Principal
	AllowedRoles() []auth.Role
}

// RoleAuthorizer checks role membership for guarded messages. Ownership rules
// stay with the handlers because they need the loaded aggregate.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(_ context.Context, message any) error {
	guarded, ok := message.(GuardedMessage)
	if !ok {
		return nil
	}
	return auth.Require(guarded.Principal(), guarded.AllowedRoles()...)
}

// check rejects a message before it reaches the next bus.
type check func(ctx context.Context, message any) error

func (c check) onCommands(next commands.Bus) commands.Bus {
	return commands.BusFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
		if err := c(ctx, cmd); err != nil {
			return nil, err
		}
		return next.Dispatch(ctx, cmd)
	})
}

func (c check) onQueries(next queries.Bus) queries.Bus {
	return queries.BusFunc(func(ctx context.Context, q queries.Query) (any, error) {
		if err := c(ctx, q); err != nil {
			return nil, err
		}
		return next.Ask(ctx, q)
	})
}

func Validation(v Validator) CommandMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return check(v.Validate).onCommands
}

func QueryValidation(v Validator) QueryMiddleware {
	if v == nil {
		panic("middleware: validator required")
	}
	return check(v.Validate).onQueries
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return check(a.Authorize).onCommands
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return check(a.Authorize).onQueries
}
