// Package bboltstore provides a BBolt-backed storage.Store. Each kind is a top-level
// bucket and each branch a nested bucket inside it.
package bboltstore

import (
	"context"
	"encoding/json"
	"fmt"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

// rootBranch stands in for the empty branch name, which bbolt rejects.
const rootBranch = "~"

// Store implements storage.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// Open opens a BBolt database at the given path and returns a new Store.
func Open(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, ierrors.Unavailable(err, "opening bbolt db %s", path)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func branchName(branch string) []byte {
	if branch == "" {
		return []byte(rootBranch)
	}
	return []byte(branch)
}

func (s *Store) getBranch(tx *bbolt.Tx, kind storage.Kind, branch string) *bbolt.Bucket {
	k := tx.Bucket([]byte(kind))
	if k == nil {
		return nil
	}
	return k.Bucket(branchName(branch))
}

func (s *Store) createBranch(tx *bbolt.Tx, kind storage.Kind, branch string) (*bbolt.Bucket, error) {
	k, err := tx.CreateBucketIfNotExists([]byte(kind))
	if err != nil {
		return nil, err
	}
	return k.CreateBucketIfNotExists(branchName(branch))
}

func (s *Store) Find(_ context.Context, q storage.Query) ([]*storage.Entry, error) {
	var matched []*storage.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		matched, err = s.match(tx, q)
		return err
	})
	if err != nil {
		return nil, ierrors.Unavailable(err, "[bboltstore.Find] %s", q.Kind)
	}
	return storage.Page(matched, q.Offset, q.Limit), nil
}

func (s *Store) FindOne(_ context.Context, kind storage.Kind, branch, key string) (*storage.Entry, error) {
	var entry *storage.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := s.getBranch(tx, kind, branch)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		entry = &storage.Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, ierrors.Unavailable(err, "[bboltstore.FindOne] %s/%s/%s", kind, branch, key)
	}
	if entry == nil {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s/%s/%s", kind, branch, key)
	}
	return entry, nil
}

func (s *Store) Persist(_ context.Context, e *storage.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "[bboltstore.Persist] marshal")
	}
	var domainErr error
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := s.getBranch(tx, e.Kind, e.Branch)
		if b == nil {
			domainErr = errors.Wrapf(storage.ErrNoBranch, "%s/%s", e.Kind, e.Branch)
			return nil
		}
		if b.Get([]byte(e.Key)) != nil {
			domainErr = errors.Wrapf(storage.ErrExists, "%s/%s/%s", e.Kind, e.Branch, e.Key)
			return nil
		}
		return b.Put([]byte(e.Key), data)
	})
	if err != nil {
		return ierrors.Unavailable(err, "[bboltstore.Persist] %s/%s/%s", e.Kind, e.Branch, e.Key)
	}
	return domainErr
}

func (s *Store) Merge(_ context.Context, e *storage.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "[bboltstore.Merge] marshal")
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := s.createBranch(tx, e.Kind, e.Branch)
		if err != nil {
			return err
		}
		return b.Put([]byte(e.Key), data)
	})
	return ierrors.Unavailable(err, "[bboltstore.Merge] %s/%s/%s", e.Kind, e.Branch, e.Key)
}

func (s *Store) Remove(_ context.Context, kind storage.Kind, branch, key string) error {
	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := s.getBranch(tx, kind, branch)
		if b == nil || b.Get([]byte(key)) == nil {
			return nil
		}
		found = true
		return b.Delete([]byte(key))
	})
	if err != nil {
		return ierrors.Unavailable(err, "[bboltstore.Remove] %s/%s/%s", kind, branch, key)
	}
	if !found {
		return errors.Wrapf(storage.ErrNotFound, "%s/%s/%s", kind, branch, key)
	}
	return nil
}

func (s *Store) RemoveByFilter(_ context.Context, q storage.Query) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		matched, err := s.match(tx, q)
		if err != nil {
			return err
		}
		for _, e := range storage.Page(matched, q.Offset, q.Limit) {
			b := s.getBranch(tx, e.Kind, e.Branch)
			if b == nil {
				continue
			}
			if err := b.Delete([]byte(e.Key)); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, ierrors.Unavailable(err, "[bboltstore.RemoveByFilter] %s", q.Kind)
	}
	return removed, nil
}

func (s *Store) Contains(_ context.Context, kind storage.Kind, branch, key string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := s.getBranch(tx, kind, branch)
		found = b != nil && b.Get([]byte(key)) != nil
		return nil
	})
	return found, ierrors.Unavailable(err, "[bboltstore.Contains] %s/%s/%s", kind, branch, key)
}

func (s *Store) ContainsBranch(_ context.Context, kind storage.Kind, branch string) (bool, error) {
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = s.getBranch(tx, kind, branch) != nil
		return nil
	})
	return found, ierrors.Unavailable(err, "[bboltstore.ContainsBranch] %s/%s", kind, branch)
}

func (s *Store) CreateBranch(_ context.Context, kind storage.Kind, branch string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := s.createBranch(tx, kind, branch)
		return err
	})
	return ierrors.Unavailable(err, "[bboltstore.CreateBranch] %s/%s", kind, branch)
}

// match walks the branches selected by q in key order and decodes matching entries.
func (s *Store) match(tx *bbolt.Tx, q storage.Query) ([]*storage.Entry, error) {
	k := tx.Bucket([]byte(q.Kind))
	if k == nil {
		return nil, nil
	}

	var buckets []*bbolt.Bucket
	if q.Scope == storage.ScopeSubtree {
		c := k.Cursor()
		for name, v := c.First(); name != nil; name, v = c.Next() {
			if v == nil {
				buckets = append(buckets, k.Bucket(name))
			}
		}
	} else if b := k.Bucket(branchName(q.Branch)); b != nil {
		buckets = append(buckets, b)
	}

	var out []*storage.Entry
	for _, b := range buckets {
		c := b.Cursor()
		for key, data := c.First(); key != nil; key, data = c.Next() {
			if data == nil {
				continue
			}
			var e storage.Entry
			if err := json.Unmarshal(data, &e); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", key, err)
			}
			if storage.Matches(q.Filter, &e) {
				out = append(out, &e)
			}
		}
	}
	return out, nil
}
