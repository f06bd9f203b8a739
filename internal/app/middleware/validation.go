package middleware

import (
	"context"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/queries"
)

// Validator checks struct tags on commands and queries before they reach a handler.
type Validator interface {
	Validate(ctx context.Context, message any) error
}

func Validation(v Validator) CommandMiddleware {
	required(v, "validator")
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := v.Validate(ctx, cmd); err != nil {
				return nil, err
			}
			return next.Dispatch(ctx, cmd)
		})
	}
}

// QueryValidation rejects malformed queries, e.g. an availability lookup without a group id.
func QueryValidation(v Validator) QueryMiddleware {
	required(v, "validator")
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := v.Validate(ctx, q); err != nil {
				return nil, err
			}
			return next.Ask(ctx, q)
		})
	}
}
