package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestBlacklistAddAndContains(t *testing.T) {
	client, mr := testClient(t)
	bl := NewBlacklist(client, "")
	ctx := context.Background()

	revoked, err := bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, bl.Add(ctx, "jti-1", time.Hour))
	revoked, err = bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// Entries fall out once their TTL elapses.
	mr.FastForward(2 * time.Hour)
	revoked, err = bl.Contains(ctx, "jti-1")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestBlacklistHook(t *testing.T) {
	client, mr := testClient(t)
	bl := NewBlacklist(client, "custom:")
	ctx := context.Background()

	hook := bl.Hook()
	require.False(t, hook("jti-1"))

	require.NoError(t, bl.Add(ctx, "jti-1", time.Hour))
	require.True(t, hook("jti-1"))
	require.True(t, mr.Exists("custom:jti-1"))

	// A dead backend reports revoked rather than letting tokens through.
	mr.Close()
	require.True(t, hook("jti-2"))
}

func TestVerifyCounterCache(t *testing.T) {
	client, mr := testClient(t)
	cache := NewVerifyCounterCache(client, "")
	ctx := context.Background()

	counter, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(-1), counter)

	require.NoError(t, cache.Set(ctx, "user-1", 56666666, 60))
	counter, err = cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(56666666), counter)

	mr.FastForward(2 * time.Minute)
	counter, err = cache.Get(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(-1), counter)
}
