package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/commands"
	"rentpool/internal/app/middleware"
	"rentpool/internal/app/uow"
	"rentpool/internal/infra/storage/memory"
)

type reserveCommand struct {
	IdemKey string
}

func (c reserveCommand) Key() string            { return "test.reserve" }
func (c reserveCommand) IdempotencyKey() string { return c.IdemKey }
func (c reserveCommand) ResultPrototype() any   { return &reserveResult{} }

type otherCommand struct{ IdemKey string }

func (c otherCommand) Key() string            { return "test.other" }
func (c otherCommand) IdempotencyKey() string { return c.IdemKey }
func (c otherCommand) ResultPrototype() any   { return &reserveResult{} }

type selfTxCommand struct{}

func (selfTxCommand) Key() string           { return "test.self_tx" }
func (selfTxCommand) SelfTransacting() bool { return true }

type reserveResult struct {
	Seq int `json:"seq"`
}

type flushCounter struct{ n int }

func (f *flushCounter) Flush(context.Context) error {
	f.n++
	return errors.New("relay asleep")
}

func TestIdempotencyReplaysSuccessOnly(t *testing.T) {
	calls := 0
	fail := true
	reg := commands.NewRegistry()
	commands.Register(reg, commands.HandlerFunc[reserveCommand, *reserveResult](func(ctx context.Context, cmd reserveCommand) (*reserveResult, error) {
		calls++
		if fail {
			return nil, errors.New("transient")
		}
		return &reserveResult{Seq: calls}, nil
	}))
	commands.Register(reg, commands.HandlerFunc[otherCommand, *reserveResult](func(ctx context.Context, cmd otherCommand) (*reserveResult, error) {
		return &reserveResult{}, nil
	}))
	bus := middleware.ChainCommands(reg, middleware.Idempotency(memory.NewIdempotencyStore(0), nil))
	ctx := context.Background()

	_, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{IdemKey: "k1"})
	require.Error(t, err)

	fail = false
	first, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{IdemKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Seq, "failures are not cached")

	again, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{IdemKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Seq)
	assert.Equal(t, 2, calls)

	_, err = commands.Dispatch[otherCommand, *reserveResult](ctx, bus, otherCommand{IdemKey: "k1"})
	assert.ErrorIs(t, err, middleware.ErrIdempotencyKeyReused)

	fresh, err := commands.Dispatch[reserveCommand, *reserveResult](ctx, bus, reserveCommand{})
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Seq, "commands without a key always run")
}

func TestTransactionCommitsAmbientUnit(t *testing.T) {
	store := memory.NewStore()
	factory := memory.Factory{Store: store}
	var sawUnit, selfSawUnit bool

	reg := commands.NewRegistry()
	commands.Register(reg, commands.HandlerFunc[reserveCommand, *reserveResult](func(ctx context.Context, cmd reserveCommand) (*reserveResult, error) {
		_, sawUnit = uow.FromContext(ctx)
		return &reserveResult{}, nil
	}))
	commands.Register(reg, commands.HandlerFunc[selfTxCommand, *reserveResult](func(ctx context.Context, cmd selfTxCommand) (*reserveResult, error) {
		_, selfSawUnit = uow.FromContext(ctx)
		return &reserveResult{}, nil
	}))
	flusher := &flushCounter{}
	bus := middleware.ChainCommands(reg, middleware.OutboxFlush(flusher), middleware.Transaction(factory))

	_, err := bus.Dispatch(context.Background(), reserveCommand{})
	require.NoError(t, err)
	assert.True(t, sawUnit)

	_, err = bus.Dispatch(context.Background(), selfTxCommand{})
	require.NoError(t, err, "flush errors are swallowed")
	assert.False(t, selfSawUnit)
	assert.Equal(t, 2, flusher.n)
}

func TestRegistryRejectsUnknownAndDuplicate(t *testing.T) {
	reg := commands.NewRegistry()
	_, err := reg.Dispatch(context.Background(), reserveCommand{})
	assert.ErrorIs(t, err, commands.ErrHandlerNotFound)

	h := commands.HandlerFunc[reserveCommand, *reserveResult](func(context.Context, reserveCommand) (*reserveResult, error) {
		return nil, nil
	})
	commands.Register(reg, h)
	assert.Panics(t, func() { commands.Register(reg, h) })
	assert.Equal(t, []string{"test.reserve"}, reg.Keys())
}
