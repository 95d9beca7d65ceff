package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-sub021/cache"
	"github.com/JanssenProject/jans-sub021/cache/cachetest"
	"github.com/JanssenProject/jans-sub021/cache/rediscache"
)

func newTestCache(t *testing.T) (*rediscache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := rediscache.NewWithClient(client, "test:")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache(t *testing.T) {
	cachetest.Run(t, func(t *testing.T) (cache.Cache, func(time.Duration)) {
		c, mr := newTestCache(t)
		return c, mr.FastForward
	})
}

func TestIndexExpiryFollowsLongestToken(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	key := "test:session_tokens:s1"

	require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "refresh", 24*time.Hour))
	require.Equal(t, 24*time.Hour, mr.TTL(key))

	require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "id", 5*time.Minute))
	require.Equal(t, 24*time.Hour, mr.TTL(key), "a shorter token does not shorten the index")

	require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "other", 48*time.Hour))
	require.Equal(t, 48*time.Hour, mr.TTL(key))

	members, err := mr.Members(key)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"refresh", "id", "other"}, members)
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := rediscache.New(ctx, rediscache.Config{Addr: "127.0.0.1:1"})
	require.Error(t, err)
}
