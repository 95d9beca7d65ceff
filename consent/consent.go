// Package consent records which scopes a user granted to a client.
package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/internal/utils"
	"github.com/JanssenProject/jans-sub021/storage"
)

const (
	fieldUserRef  = "userRef"
	fieldClientID = "clientId"
)

// Record is the consent of one user to one client. Scopes only ever grow.
type Record struct {
	ID        string    `json:"id"`
	UserRef   string    `json:"userRef"`
	ClientID  string    `json:"clientId"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Ledger stores consent records in the durable store, one per (user, client).
type Ledger struct {
	store         storage.Store
	cacheImplicit bool
	nowFunc       func() time.Time
	logger        zerolog.Logger
}

// LedgerOption defines a function type to modify the Ledger instance.
type LedgerOption func(*Ledger)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = now
	}
}

// WithLogger sets the logger used by the ledger.
func WithLogger(logger zerolog.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithCacheAllImplicitFlowObjects mirrors the token policy. Implicit grants by
// pre-authorized clients are then not recorded.
func WithCacheAllImplicitFlowObjects(enabled bool) LedgerOption {
	return func(l *Ledger) {
		l.cacheImplicit = enabled
	}
}

func NewLedger(store storage.Store, options ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		nowFunc: time.Now,
		logger:  logging.Component("consent"),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// HasConsented reports whether userRef granted every requested scope to client.
// Trusted and pre-authorized clients are always consented.
func (l *Ledger) HasConsented(ctx context.Context, userRef string, client *clients.Client, requested []string) (bool, error) {
	if client.Trusted || client.PreAuthorized {
		return true, nil
	}
	r, err := l.Find(ctx, userRef, client.ID)
	if errors.Is(err, ierrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Ledger.HasConsented]")
	}
	return utils.NewStringSet(r.Scopes...).ContainsAll(requested), nil
}

// Grant adds scopes to the consent of userRef for client.
func (l *Ledger) Grant(ctx context.Context, userRef string, client *clients.Client, scopes []string, implicitFlow bool) error {
	if client.Trusted {
		return nil
	}
	if client.PreAuthorized && implicitFlow && l.cacheImplicit {
		return nil
	}

	now := l.nowFunc()
	r, err := l.Find(ctx, userRef, client.ID)
	switch {
	case errors.Is(err, ierrors.ErrNotFound):
		r = &Record{
			ID:        uuid.NewString(),
			UserRef:   userRef,
			ClientID:  client.ID,
			CreatedAt: now,
		}
	case err != nil:
		return errors.Wrap(err, "[Ledger.Grant]")
	}

	r.Scopes = utils.Union(r.Scopes, scopes)
	r.UpdatedAt = now
	return errors.Wrapf(l.save(ctx, r), "[Ledger.Grant] user %s client %s", userRef, client.ID)
}

// Find returns the consent record of userRef for clientID. When several exist the
// first by key is used.
func (l *Ledger) Find(ctx context.Context, userRef, clientID string) (*Record, error) {
	entries, err := l.store.Find(ctx, storage.Query{
		Kind: storage.KindConsent,
		Filter: storage.And(
			storage.Eq(fieldUserRef, userRef),
			storage.Eq(fieldClientID, clientID),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Ledger.Find]")
	}
	if len(entries) == 0 {
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Ledger.Find] consent of %s for %s", userRef, clientID)
	}
	if len(entries) > 1 {
		l.logger.Warn().Str("user", userRef).Str("client", clientID).Int("count", len(entries)).
			Msg("duplicate consent records, using the first")
	}
	var r Record
	if err := entries[0].Decode(&r); err != nil {
		return nil, errors.Wrap(err, "[Ledger.Find] decode")
	}
	return &r, nil
}

// Revoke removes every consent of userRef for clientID. Absent consent is not an error.
func (l *Ledger) Revoke(ctx context.Context, userRef, clientID string) error {
	_, err := l.store.RemoveByFilter(ctx, storage.Query{
		Kind: storage.KindConsent,
		Filter: storage.And(
			storage.Eq(fieldUserRef, userRef),
			storage.Eq(fieldClientID, clientID),
		),
	})
	return errors.Wrap(err, "[Ledger.Revoke]")
}

// RevokeForClient removes the consents of every user for clientID.
func (l *Ledger) RevokeForClient(ctx context.Context, clientID string) (int, error) {
	n, err := l.store.RemoveByFilter(ctx, storage.Query{
		Kind:   storage.KindConsent,
		Filter: storage.Eq(fieldClientID, clientID),
	})
	return n, errors.Wrap(err, "[Ledger.RevokeForClient]")
}

// Clear drops the consent once a flow completes for clients that do not keep
// authorizations between flows.
func (l *Ledger) Clear(ctx context.Context, userRef string, client *clients.Client) error {
	if client.PersistAuthorizations || client.Trusted {
		return nil
	}
	return l.Revoke(ctx, userRef, client.ID)
}

func (l *Ledger) save(ctx context.Context, r *Record) error {
	entry, err := storage.NewEntry(storage.KindConsent, "", r.ID, r)
	if err != nil {
		return err
	}
	entry.Fields[fieldUserRef] = r.UserRef
	entry.Fields[fieldClientID] = r.ClientID
	return l.store.Merge(ctx, entry)
}
