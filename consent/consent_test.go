package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-sub021/clients"
	"github.com/JanssenProject/jans-sub021/consent"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/JanssenProject/jans-sub021/storage/memstore"
)

const testUserRef = "user-1"

type testFixture struct {
	store  *memstore.Store
	ledger *consent.Ledger
	client *clients.Client
}

func setupTestFixture(t *testing.T, options ...consent.LedgerOption) *testFixture {
	t.Helper()
	store := memstore.New()
	return &testFixture{
		store:  store,
		ledger: consent.NewLedger(store, options...),
		client: &clients.Client{ID: "client-1", Type: clients.ClientTypeConfidential},
	}
}

func TestGrantAccumulatesScopes(t *testing.T) {
	ctx := context.Background()

	orders := [][][]string{
		{{"openid", "profile"}, {"email"}},
		{{"email"}, {"openid", "profile"}},
		{{"openid", "email"}, {"profile", "openid"}},
	}
	for _, order := range orders {
		f := setupTestFixture(t)
		for _, scopes := range order {
			require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, scopes, false))
		}
		r, err := f.ledger.Find(ctx, testUserRef, f.client.ID)
		require.NoError(t, err)
		require.Equal(t, []string{"email", "openid", "profile"}, r.Scopes)
	}
}

func TestGrantNeverReduces(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, []string{"openid", "profile"}, false))
	require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, []string{"openid"}, false))

	ok, err := f.ledger.HasConsented(ctx, testUserRef, f.client, []string{"openid", "profile"})
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := f.store.Find(ctx, storage.Query{Kind: storage.KindConsent})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHasConsented(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	ok, err := f.ledger.HasConsented(ctx, testUserRef, f.client, []string{"openid"})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, []string{"openid"}, false))
	ok, err = f.ledger.HasConsented(ctx, testUserRef, f.client, []string{"openid"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.ledger.HasConsented(ctx, testUserRef, f.client, []string{"openid", "email"})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.ledger.HasConsented(ctx, "user-2", f.client, []string{"openid"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrustedAndPreAuthorizedBypass(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, consent.WithCacheAllImplicitFlowObjects(true))

	trusted := &clients.Client{ID: "trusted", Trusted: true}
	preAuthorized := &clients.Client{ID: "pre", PreAuthorized: true}

	for _, c := range []*clients.Client{trusted, preAuthorized} {
		ok, err := f.ledger.HasConsented(ctx, testUserRef, c, []string{"openid", "email"})
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, trusted, []string{"openid"}, false))
	require.NoError(t, f.ledger.Grant(ctx, testUserRef, preAuthorized, []string{"openid"}, true))
	entries, err := f.store.Find(ctx, storage.Query{Kind: storage.KindConsent})
	require.NoError(t, err)
	require.Empty(t, entries, "no record written for trusted or implicit pre-authorized grants")

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, preAuthorized, []string{"openid"}, false))
	_, err = f.ledger.Find(ctx, testUserRef, preAuthorized.ID)
	require.NoError(t, err)
}

func TestDuplicateRecordsUseFirst(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	for _, r := range []consent.Record{
		{ID: "b-record", UserRef: testUserRef, ClientID: f.client.ID, Scopes: []string{"email"}},
		{ID: "a-record", UserRef: testUserRef, ClientID: f.client.ID, Scopes: []string{"openid"}},
	} {
		entry, err := storage.NewEntry(storage.KindConsent, "", r.ID, r)
		require.NoError(t, err)
		entry.Fields["userRef"] = r.UserRef
		entry.Fields["clientId"] = r.ClientID
		require.NoError(t, f.store.Merge(ctx, entry))
	}

	r, err := f.ledger.Find(ctx, testUserRef, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, "a-record", r.ID)
}

func TestRevokeAndClear(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestFixture(t, consent.WithNowFunc(func() time.Time { return now }))

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, []string{"openid"}, false))
	require.NoError(t, f.ledger.Grant(ctx, "user-2", f.client, []string{"openid"}, false))

	r, err := f.ledger.Find(ctx, testUserRef, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, now, r.CreatedAt)

	require.NoError(t, f.ledger.Revoke(ctx, testUserRef, f.client.ID))
	require.NoError(t, f.ledger.Revoke(ctx, testUserRef, f.client.ID))
	_, err = f.ledger.Find(ctx, testUserRef, f.client.ID)
	require.ErrorIs(t, err, ierrors.ErrNotFound)

	persisting := &clients.Client{ID: f.client.ID, PersistAuthorizations: true}
	require.NoError(t, f.ledger.Clear(ctx, "user-2", persisting))
	_, err = f.ledger.Find(ctx, "user-2", f.client.ID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Clear(ctx, "user-2", f.client))
	_, err = f.ledger.Find(ctx, "user-2", f.client.ID)
	require.ErrorIs(t, err, ierrors.ErrNotFound)

	require.NoError(t, f.ledger.Grant(ctx, testUserRef, f.client, []string{"openid"}, false))
	require.NoError(t, f.ledger.Grant(ctx, "user-3", f.client, []string{"openid"}, false))
	n, err := f.ledger.RevokeForClient(ctx, f.client.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
