package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisResetCodes, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisResetCodes(client), mr
}

func TestResetCodesRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ana@example.com", "123456", time.Minute))

	ok, err := store.Consume(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	require.True(t, ok)

	// Single use: the same code does not verify twice.
	ok, err = store.Consume(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetCodesWrongCode(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ana@example.com", "123456", time.Minute))

	ok, err := store.Consume(ctx, "ana@example.com", "654321")
	require.NoError(t, err)
	require.False(t, ok)

	// A failed attempt does not burn the stored code.
	ok, err = store.Consume(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResetCodesExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ana@example.com", "123456", time.Minute))
	mr.FastForward(2 * time.Minute)

	ok, err := store.Consume(ctx, "ana@example.com", "123456")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetCodesReplacedOnNewRequest(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "ana@example.com", "111111", time.Minute))
	require.NoError(t, store.Save(ctx, "ana@example.com", "222222", time.Minute))

	ok, err := store.Consume(ctx, "ana@example.com", "111111")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.Consume(ctx, "ana@example.com", "222222")
	require.NoError(t, err)
	require.True(t, ok)
}
