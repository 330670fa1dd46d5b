package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testLeaseKey = "pos-sync:lease:store-1"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestRedisLeaseIsExclusive(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)

	first := NewRedisLease(client, testLeaseKey, zap.NewNop())
	second := NewRedisLease(client, testLeaseKey, zap.NewNop())
	require.NoError(t, first.Ping(ctx))

	ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	owner, err := server.Get(testLeaseKey)
	require.NoError(t, err)
	assert.Equal(t, first.Owner(), owner)

	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err = server.Get(testLeaseKey)
	require.NoError(t, err)
	assert.Equal(t, first.Owner(), owner)
}

func TestRedisLeaseRefreshExtendsOwnLease(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)

	holder := NewRedisLease(client, testLeaseKey, zap.NewNop())

	ok, err := holder.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = holder.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, server.TTL(testLeaseKey), 30*time.Second)
}

func TestRedisLeaseExpires(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)

	first := NewRedisLease(client, testLeaseKey, zap.NewNop())
	second := NewRedisLease(client, testLeaseKey, zap.NewNop())

	ok, err := first.Acquire(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	server.FastForward(2 * time.Second)

	ok, err = second.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = first.Acquire(ctx, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLeaseReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	server, client := newTestRedis(t)

	first := NewRedisLease(client, testLeaseKey, zap.NewNop())
	second := NewRedisLease(client, testLeaseKey, zap.NewNop())

	ok, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.True(t, server.Exists(testLeaseKey))

	require.NoError(t, first.Release(ctx))
	assert.False(t, server.Exists(testLeaseKey))

	ok, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaseUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
	defer client.Close()
	holder := NewRedisLease(client, testLeaseKey, zap.NewNop())

	_, err := holder.Acquire(context.Background(), time.Minute)
	assert.Error(t, err)
}
