// Package storagetest holds the behaviour every storage.Store implementation must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name string `json:"name"`
}

func entry(t *testing.T, kind storage.Kind, branch, key, owner string, at time.Time) *storage.Entry {
	t.Helper()
	e, err := storage.NewEntry(kind, branch, key, record{Name: key})
	require.NoError(t, err)
	e.Fields["owner"] = owner
	e.Times["at"] = at
	return e
}

// Run exercises newStore against the storage.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("persist requires branch", func(t *testing.T) {
		s := newStore(t)
		err := s.Persist(ctx, entry(t, storage.KindToken, "client-1", "k1", "u1", base))
		require.True(t, errors.Is(err, storage.ErrNoBranch))

		ok, err := s.ContainsBranch(ctx, storage.KindToken, "client-1")
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.CreateBranch(ctx, storage.KindToken, "client-1"))
		ok, err = s.ContainsBranch(ctx, storage.KindToken, "client-1")
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.Persist(ctx, entry(t, storage.KindToken, "client-1", "k1", "u1", base)))
		err = s.Persist(ctx, entry(t, storage.KindToken, "client-1", "k1", "u1", base))
		require.True(t, errors.Is(err, storage.ErrExists))
	})

	t.Run("find one and decode", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Merge(ctx, entry(t, storage.KindSession, "", "s1", "u1", base)))

		got, err := s.FindOne(ctx, storage.KindSession, "", "s1")
		require.NoError(t, err)
		var r record
		require.NoError(t, got.Decode(&r))
		require.Equal(t, "s1", r.Name)
		require.Equal(t, "u1", got.Fields["owner"])
		require.True(t, base.Equal(got.Times["at"]))

		_, err = s.FindOne(ctx, storage.KindSession, "", "missing")
		require.True(t, errors.Is(err, storage.ErrNotFound))

		ok, err := s.Contains(ctx, storage.KindSession, "", "s1")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("remove reports missing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Merge(ctx, entry(t, storage.KindSession, "", "s1", "u1", base)))
		require.NoError(t, s.Remove(ctx, storage.KindSession, "", "s1"))
		err := s.Remove(ctx, storage.KindSession, "", "s1")
		require.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("filters and paging", func(t *testing.T) {
		s := newStore(t)
		for i, key := range []string{"a", "b", "c", "d"} {
			owner := "u1"
			if i%2 == 1 {
				owner = "u2"
			}
			branch := "client-1"
			if i >= 2 {
				branch = "client-2"
			}
			require.NoError(t, s.Merge(ctx, entry(t, storage.KindToken, branch, key, owner, base.Add(time.Duration(i)*time.Hour))))
		}

		all, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree})
		require.NoError(t, err)
		require.Len(t, all, 4)

		one, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Branch: "client-2"})
		require.NoError(t, err)
		require.Len(t, one, 2)
		require.Equal(t, "c", one[0].Key)

		u2, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree, Filter: storage.Eq("owner", "u2")})
		require.NoError(t, err)
		require.Len(t, u2, 2)

		early, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree, Filter: storage.Before("at", base.Add(90*time.Minute))})
		require.NoError(t, err)
		require.Len(t, early, 2)

		either, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree, Filter: storage.Or(
			storage.And(storage.Eq("owner", "u1"), storage.After("at", base)),
			storage.Not(storage.Present("owner")),
		)})
		require.NoError(t, err)
		require.Len(t, either, 1)
		require.Equal(t, "c", either[0].Key)

		page, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Branch: "client-1", Offset: 1, Limit: 5})
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, "b", page[0].Key)

		n, err := s.RemoveByFilter(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree, Filter: storage.Eq("owner", "u1")})
		require.NoError(t, err)
		require.Equal(t, 2, n)

		rest, err := s.Find(ctx, storage.Query{Kind: storage.KindToken, Scope: storage.ScopeSubtree})
		require.NoError(t, err)
		require.Len(t, rest, 2)
	})

	t.Run("unknown kind is empty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Find(ctx, storage.Query{Kind: storage.KindConsent, Scope: storage.ScopeSubtree})
		require.NoError(t, err)
		require.Empty(t, got)
	})
}
