// Package storage defines the durable store contract: keyed and filtered CRUD over
// session, token and consent entries grouped into kinds and branches.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
)

// Kind is the top-level record type.
type Kind string

const (
	KindSession Kind = "session"
	KindToken   Kind = "token"
	KindConsent Kind = "consent"
	KindKey     Kind = "key"
)

// Scope controls how far a Find descends.
type Scope int

const (
	// ScopeBranch searches a single branch.
	ScopeBranch Scope = iota
	// ScopeSubtree searches every branch of the kind. Query.Branch is ignored.
	ScopeSubtree
)

var (
	// ErrNotFound is the shared not found sentinel.
	ErrNotFound = ierrors.ErrNotFound
	ErrExists   = errors.New("entry already exists")
	ErrNoBranch = errors.New("branch does not exist")
)

// Entry is one stored record. Fields and Times are the indexed attributes filters
// are evaluated against, Data is the opaque JSON body.
type Entry struct {
	Kind   Kind                 `json:"kind"`
	Branch string               `json:"branch"`
	Key    string               `json:"key"`
	Fields map[string]string    `json:"fields,omitempty"`
	Times  map[string]time.Time `json:"times,omitempty"`
	Data   json.RawMessage      `json:"data,omitempty"`
}

// Decode unmarshals Data into v.
func (e *Entry) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// NewEntry builds an entry with v marshalled as its body.
func NewEntry(kind Kind, branch, key string, v any) (*Entry, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Kind:   kind,
		Branch: branch,
		Key:    key,
		Fields: map[string]string{},
		Times:  map[string]time.Time{},
		Data:   data,
	}, nil
}

// Query selects entries. Limit <= 0 means no limit. Results are ordered by branch then key.
type Query struct {
	Kind   Kind
	Branch string
	Scope  Scope
	Filter Filter
	Offset int
	Limit  int
}

// Store is the durable store adapter. Implementations provide atomic single-entry
// persist/merge/remove and wrap transport failures with errors.ErrBackendUnavailable.
type Store interface {
	Find(ctx context.Context, q Query) ([]*Entry, error)
	FindOne(ctx context.Context, kind Kind, branch, key string) (*Entry, error)
	// Persist creates an entry. Fails with ErrExists or ErrNoBranch.
	Persist(ctx context.Context, e *Entry) error
	// Merge creates or replaces an entry, creating the branch if needed.
	Merge(ctx context.Context, e *Entry) error
	// Remove deletes one entry. Fails with ErrNotFound when absent.
	Remove(ctx context.Context, kind Kind, branch, key string) error
	RemoveByFilter(ctx context.Context, q Query) (int, error)
	Contains(ctx context.Context, kind Kind, branch, key string) (bool, error)
	ContainsBranch(ctx context.Context, kind Kind, branch string) (bool, error)
	CreateBranch(ctx context.Context, kind Kind, branch string) error
	Close() error
}

// Page applies offset and limit to an ordered result slice.
func Page(entries []*Entry, offset, limit int) []*Entry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entries) {
		return []*Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
