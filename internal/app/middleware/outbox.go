package middleware

import (
	"context"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/outbox"
)

// OutboxFlush nudges the relay after the command returns so events leave
// without waiting for the next poll. It must sit outside Transaction in the
// chain, otherwise the relay wakes before the records are committed. A failed
// nudge is ignored: the records are durable and the relay picks them up on
// its own.
func OutboxFlush(f outbox.Flusher) CommandMiddleware {
	required(f, "outbox flusher")
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			res, err := next.Dispatch(ctx, cmd)
			if err == nil {
				_ = f.Flush(context.WithoutCancel(ctx))
			}
			return res, err
		})
	}
}
