package middleware

import (
	"context"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/uow"
)

// SelfTransacting is implemented by commands whose handler opens its own
// transactions, for example to retry after a write conflict.
type SelfTransacting interface {
	SelfTransacting() bool
}

// Transaction runs each command inside one unit of work bound to the context.
// The unit commits only when the handler succeeds.
func Transaction(factory uow.UoWFactory) CommandMiddleware {
	required(factory, "uow factory")
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (res any, err error) {
			if st, ok := cmd.(SelfTransacting); ok && st.SelfTransacting() {
				return next.Dispatch(ctx, cmd)
			}
			unit, err := factory.Begin(ctx, uow.TxOptions{})
			if err != nil {
				return nil, err
			}
			txCtx := uow.Bind(ctx, unit)
			defer func() {
				if err != nil {
					_ = unit.Rollback(txCtx)
				}
			}()
			if res, err = next.Dispatch(txCtx, cmd); err != nil {
				return nil, err
			}
			if err = unit.Commit(txCtx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
