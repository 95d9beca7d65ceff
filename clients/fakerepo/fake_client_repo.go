// Package fakeclientrepo is an in-memory clients.Repo.
package fakeclientrepo

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
)

var _ clients.Repo = (*FakeClientRepo)(nil)

type FakeClientRepo struct {
	mu   sync.RWMutex
	byID map[string]*clients.Client
}

func NewFakeClientRepo(seed ...*clients.Client) *FakeClientRepo {
	r := &FakeClientRepo{byID: map[string]*clients.Client{}}
	for _, c := range seed {
		_ = r.Upsert(c)
	}
	return r
}

// Upsert assigns a random ID to clients registered without one.
func (r *FakeClientRepo) Upsert(client *clients.Client) error {
	if client == nil {
		return errors.Wrap(ierrors.ErrInvalidRequest, "[FakeClientRepo.Upsert] nil client")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	r.byID[client.ID] = client
	return nil
}

// Delete is idempotent.
func (r *FakeClientRepo) Delete(clientID string) error {
	r.mu.Lock()
	delete(r.byID, clientID)
	r.mu.Unlock()
	return nil
}

func (r *FakeClientRepo) Get(clientID string) (*clients.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byID[clientID]; ok {
		return c, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[FakeClientRepo.Get] client %s", clientID)
}

func (r *FakeClientRepo) List(offset, limit int) ([]*clients.Client, error) {
	if offset < 0 || limit < 0 {
		return nil, errors.Wrap(ierrors.ErrInvalidRequest, "[FakeClientRepo.List] negative paging")
	}
	r.mu.RLock()
	all := slices.Collect(maps.Values(r.byID))
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b *clients.Client) int { return strings.Compare(a.ID, b.ID) })
	if offset >= len(all) {
		return []*clients.Client{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
