package bootstrap_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/bootstrap"
	"rentpool/internal/app/commands"
	"rentpool/internal/app/dto"
	fleetapp "rentpool/internal/app/handlers/fleet"
	"rentpool/internal/infra/storage/memory"
)

// countingFlusher records how many outbox records were committed each time
// the relay is nudged.
type countingFlusher struct {
	store   *memory.Store
	visible []int
}

func (f *countingFlusher) Flush(context.Context) error {
	f.visible = append(f.visible, len(f.store.OutboxRecords()))
	return nil
}

func TestFlushRunsAfterCommit(t *testing.T) {
	store := memory.NewStore()
	flusher := &countingFlusher{store: store}
	buses := bootstrap.Build(bootstrap.Deps{
		UoWFactory: memory.Factory{Store: store},
		Flusher:    flusher,
	})

	_, err := commands.Dispatch[fleetapp.CreateGroupCommand, *dto.Group](context.Background(), buses.Commands, fleetapp.CreateGroupCommand{
		Name:        "Honda PCX",
		VehicleType: "scooter",
		Quantity:    2,
	})
	require.NoError(t, err)

	committed := len(store.OutboxRecords())
	require.NotZero(t, committed)
	assert.Equal(t, []int{committed}, flusher.visible)
}

func TestFlushSkippedWhenCommandFails(t *testing.T) {
	store := memory.NewStore()
	flusher := &countingFlusher{store: store}
	buses := bootstrap.Build(bootstrap.Deps{
		UoWFactory: memory.Factory{Store: store},
		Flusher:    flusher,
	})

	_, err := commands.Dispatch[fleetapp.CreateGroupCommand, *dto.Group](context.Background(), buses.Commands, fleetapp.CreateGroupCommand{
		VehicleType: "scooter",
		Quantity:    2,
	})
	require.Error(t, err)
	assert.Empty(t, flusher.visible)
	assert.Empty(t, store.OutboxRecords())
}
