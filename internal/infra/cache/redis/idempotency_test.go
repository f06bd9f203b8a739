package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentpool/internal/app/middleware"
)

func TestIdempotencyStoreAgainstServer(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := NewClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	store := NewIdempotencyStore(client, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	key := uuid.NewString()
	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: key, Command: "booking.book", Payload: []byte(`{"attempts":1}`), OccurredAt: at}))

	got, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "booking.book", got.Command)
	assert.JSONEq(t, `{"attempts":1}`, string(got.Payload))
	assert.True(t, at.Equal(got.OccurredAt))

	ttl, err := client.TTL(ctx, keyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
