// Package fakeuserrepo is an in-memory users.UserRepo keyed by ID with a username index.
package fakeuserrepo

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	mu         sync.RWMutex
	byID       map[string]*users.User
	byUsername map[string]string
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:       map[string]*users.User{},
		byUsername: map[string]string{},
	}
}

// Upsert rejects a username already held by another user.
func (r *FakeUserRepo) Upsert(user *users.User) error {
	if user == nil || user.Username == "" {
		return errors.Wrap(ierrors.ErrInvalidRequest, "[FakeUserRepo.Upsert] username required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if owner, ok := r.byUsername[user.Username]; ok && owner != user.ID {
		return errors.Wrapf(ierrors.ErrInvalidRequest, "[FakeUserRepo.Upsert] username %s taken", user.Username)
	}
	if prev, ok := r.byID[user.ID]; ok && prev.Username != user.Username {
		delete(r.byUsername, prev.Username)
	}
	r.byID[user.ID] = user
	r.byUsername[user.Username] = user.ID
	return nil
}

func (r *FakeUserRepo) Delete(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return errors.Wrapf(ierrors.ErrNotFound, "[FakeUserRepo.Delete] user %s", userID)
	}
	delete(r.byUsername, user.Username)
	delete(r.byID, userID)
	return nil
}

func (r *FakeUserRepo) GetByUsername(username string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.byUsername[username]; ok {
		return r.byID[id], nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[FakeUserRepo.GetByUsername] user %s", username)
}

func (r *FakeUserRepo) GetByID(userID string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if user, ok := r.byID[userID]; ok {
		return user, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[FakeUserRepo.GetByID] user %s", userID)
}

func (r *FakeUserRepo) SetLastLogin(userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return errors.Wrapf(ierrors.ErrNotFound, "[FakeUserRepo.SetLastLogin] user %s", userID)
	}
	user.LastLogin = at
	return nil
}
