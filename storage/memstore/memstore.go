// Package memstore is an in-memory storage.Store used by tests and single-process deployments.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/pkg/errors"
)

var _ storage.Store = (*Store)(nil)

type branches map[string]map[string]*storage.Entry

type Store struct {
	kinds map[storage.Kind]branches
	lock  sync.RWMutex
}

func New() *Store {
	return &Store{
		kinds: make(map[storage.Kind]branches),
	}
}

func (s *Store) Find(_ context.Context, q storage.Query) ([]*storage.Entry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	matched := s.match(q)
	out := make([]*storage.Entry, 0, len(matched))
	for _, e := range storage.Page(matched, q.Offset, q.Limit) {
		out = append(out, clone(e))
	}
	return out, nil
}

func (s *Store) FindOne(_ context.Context, kind storage.Kind, branch, key string) (*storage.Entry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	e, ok := s.kinds[kind][branch][key]
	if !ok {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s/%s", kind, branch, key)
	}
	return clone(e), nil
}

func (s *Store) Persist(_ context.Context, e *storage.Entry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	b, ok := s.kinds[e.Kind][e.Branch]
	if !ok {
		return errors.Wrapf(storage.ErrNoBranch, "%s/%s", e.Kind, e.Branch)
	}
	if _, exists := b[e.Key]; exists {
		return errors.Wrapf(storage.ErrExists, "%s/%s/%s", e.Kind, e.Branch, e.Key)
	}
	b[e.Key] = clone(e)
	return nil
}

func (s *Store) Merge(_ context.Context, e *storage.Entry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.branch(e.Kind, e.Branch)[e.Key] = clone(e)
	return nil
}

func (s *Store) Remove(_ context.Context, kind storage.Kind, branch, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	b := s.kinds[kind][branch]
	if _, ok := b[key]; !ok {
		return errors.Wrapf(storage.ErrNotFound, "%s/%s/%s", kind, branch, key)
	}
	delete(b, key)
	return nil
}

func (s *Store) RemoveByFilter(_ context.Context, q storage.Query) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	matched := storage.Page(s.match(q), q.Offset, q.Limit)
	for _, e := range matched {
		delete(s.kinds[e.Kind][e.Branch], e.Key)
	}
	return len(matched), nil
}

func (s *Store) Contains(_ context.Context, kind storage.Kind, branch, key string) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.kinds[kind][branch][key]
	return ok, nil
}

func (s *Store) ContainsBranch(_ context.Context, kind storage.Kind, branch string) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	_, ok := s.kinds[kind][branch]
	return ok, nil
}

func (s *Store) CreateBranch(_ context.Context, kind storage.Kind, branch string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.branch(kind, branch)
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Dump returns the serialized form of every stored entry.
func (s *Store) Dump() [][]byte {
	s.lock.RLock()
	defer s.lock.RUnlock()

	var out [][]byte
	for _, bs := range s.kinds {
		for _, b := range bs {
			for _, e := range b {
				data, _ := json.Marshal(e)
				out = append(out, data)
			}
		}
	}
	return out
}

// branch returns the branch map, creating it. Callers hold the write lock.
func (s *Store) branch(kind storage.Kind, branch string) map[string]*storage.Entry {
	bs, ok := s.kinds[kind]
	if !ok {
		bs = make(branches)
		s.kinds[kind] = bs
	}
	b, ok := bs[branch]
	if !ok {
		b = make(map[string]*storage.Entry)
		bs[branch] = b
	}
	return b
}

// match returns the matching entries ordered by branch then key. Callers hold a lock.
func (s *Store) match(q storage.Query) []*storage.Entry {
	bs := s.kinds[q.Kind]
	var names []string
	if q.Scope == storage.ScopeSubtree {
		for name := range bs {
			names = append(names, name)
		}
		sort.Strings(names)
	} else {
		names = []string{q.Branch}
	}

	var out []*storage.Entry
	for _, name := range names {
		b := bs[name]
		keys := make([]string, 0, len(b))
		for k := range b {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if storage.Matches(q.Filter, b[k]) {
				out = append(out, b[k])
			}
		}
	}
	return out
}

func clone(e *storage.Entry) *storage.Entry {
	c := *e
	c.Fields = make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		c.Fields[k] = v
	}
	c.Times = make(map[string]time.Time, len(e.Times))
	for k, v := range e.Times {
		c.Times[k] = v
	}
	c.Data = append([]byte(nil), e.Data...)
	return &c
}
