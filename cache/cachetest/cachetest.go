// Package cachetest holds the behaviour every cache.Cache implementation must share.
package cachetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JanssenProject/jans-sub021/cache"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh cache and a function moving its clock forward.
type Factory func(t *testing.T) (cache.Cache, func(time.Duration))

func Run(t *testing.T, newCache Factory) {
	ctx := context.Background()

	t.Run("get put remove", func(t *testing.T) {
		c, _ := newCache(t)
		_, err := c.Get(ctx, cache.NamespaceToken, "k")
		require.True(t, errors.Is(err, cache.ErrMiss))

		require.NoError(t, c.Put(ctx, cache.NamespaceToken, "k", []byte("v"), time.Minute))
		got, err := c.Get(ctx, cache.NamespaceToken, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)

		require.NoError(t, c.Remove(ctx, cache.NamespaceToken, "k"))
		require.NoError(t, c.Remove(ctx, cache.NamespaceToken, "k"))
		_, err = c.Get(ctx, cache.NamespaceToken, "k")
		require.True(t, errors.Is(err, cache.ErrMiss))
	})

	t.Run("take is single winner", func(t *testing.T) {
		c, _ := newCache(t)
		require.NoError(t, c.Put(ctx, cache.NamespaceToken, "code", []byte("v"), time.Minute))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if v, err := c.Take(ctx, cache.NamespaceToken, "code"); err == nil && string(v) == "v" {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)

		_, err := c.Take(ctx, cache.NamespaceToken, "code")
		require.True(t, errors.Is(err, cache.ErrMiss))
	})

	t.Run("expiry", func(t *testing.T) {
		c, advance := newCache(t)
		require.NoError(t, c.Put(ctx, cache.NamespaceToken, "short", []byte("v"), time.Second))
		require.NoError(t, c.Put(ctx, cache.NamespaceToken, "forever", []byte("v"), 0))
		advance(2 * time.Second)

		_, err := c.Get(ctx, cache.NamespaceToken, "short")
		require.True(t, errors.Is(err, cache.ErrMiss))
		_, err = c.Get(ctx, cache.NamespaceToken, "forever")
		require.NoError(t, err)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		c, _ := newCache(t)
		require.NoError(t, c.Put(ctx, cache.NamespaceToken, "k", []byte("token"), 0))
		require.NoError(t, c.Put(ctx, cache.NamespaceSession, "k", []byte("session"), 0))

		require.NoError(t, c.RemoveAll(ctx, cache.NamespaceToken))
		_, err := c.Get(ctx, cache.NamespaceToken, "k")
		require.True(t, errors.Is(err, cache.ErrMiss))
		got, err := c.Get(ctx, cache.NamespaceSession, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("session"), got)
	})

	t.Run("sets merge and expire", func(t *testing.T) {
		c, advance := newCache(t)
		members, err := c.Members(ctx, cache.NamespaceClientTokens, "client-1")
		require.NoError(t, err)
		require.Empty(t, members)

		require.NoError(t, c.AddMember(ctx, cache.NamespaceClientTokens, "client-1", "h1", time.Minute))
		require.NoError(t, c.AddMember(ctx, cache.NamespaceClientTokens, "client-1", "h2", time.Minute))
		require.NoError(t, c.AddMember(ctx, cache.NamespaceClientTokens, "client-1", "h1", time.Minute))
		members, err = c.Members(ctx, cache.NamespaceClientTokens, "client-1")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"h1", "h2"}, members)

		require.NoError(t, c.RemoveMember(ctx, cache.NamespaceClientTokens, "client-1", "h1"))
		members, err = c.Members(ctx, cache.NamespaceClientTokens, "client-1")
		require.NoError(t, err)
		require.Equal(t, []string{"h2"}, members)

		advance(2 * time.Minute)
		members, err = c.Members(ctx, cache.NamespaceClientTokens, "client-1")
		require.NoError(t, err)
		require.Empty(t, members)
	})

	t.Run("set expiry only extends", func(t *testing.T) {
		c, advance := newCache(t)
		require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "refresh", time.Hour))
		require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "id", time.Minute))

		advance(10 * time.Minute)
		members, err := c.Members(ctx, cache.NamespaceSessionTokens, "s1")
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"refresh", "id"}, members)

		require.NoError(t, c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", "access", 2*time.Hour))
		advance(time.Hour)
		members, err = c.Members(ctx, cache.NamespaceSessionTokens, "s1")
		require.NoError(t, err)
		require.Len(t, members, 3)

		require.NoError(t, c.AddMember(ctx, cache.NamespaceClientTokens, "c1", "h1", 0))
		require.NoError(t, c.AddMember(ctx, cache.NamespaceClientTokens, "c1", "h2", time.Second))
		advance(time.Minute)
		members, err = c.Members(ctx, cache.NamespaceClientTokens, "c1")
		require.NoError(t, err)
		require.Len(t, members, 2)
	})

	t.Run("concurrent adds union", func(t *testing.T) {
		c, _ := newCache(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = c.AddMember(ctx, cache.NamespaceSessionTokens, "s1", fmt.Sprintf("h%d", i), time.Minute)
			}(i)
		}
		wg.Wait()
		members, err := c.Members(ctx, cache.NamespaceSessionTokens, "s1")
		require.NoError(t, err)
		require.Len(t, members, 20)
	})
}
