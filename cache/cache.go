// Package cache defines the expiring key/value tier used as the fast, ephemeral
// alternative to the durable store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Namespaces used by the engine.
const (
	NamespaceSession       = "session"
	NamespaceToken         = "token"
	NamespaceClientTokens  = "client_tokens"
	NamespaceSessionTokens = "session_tokens"
	NamespaceGrantTokens   = "grant_tokens"
	// NamespaceConsumedCodes maps the hash of a redeemed authorization code to its grant.
	NamespaceConsumedCodes = "consumed_codes"
)

// Cache is the cache tier. A ttl <= 0 stores without expiry.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error
	// Take atomically returns and deletes key. Of concurrent callers exactly one gets
	// the value, the others ErrMiss.
	Take(ctx context.Context, namespace, key string) ([]byte, error)
	// Remove deletes key. An absent key is not an error.
	Remove(ctx context.Context, namespace, key string) error
	RemoveAll(ctx context.Context, namespace string) error

	// AddMember atomically adds member to the set at key. The set's expiry only ever
	// moves later: it becomes max(current expiry, now+ttl), a ttl <= 0 meaning never.
	AddMember(ctx context.Context, namespace, key, member string, ttl time.Duration) error
	// Members returns the set at key, empty when absent.
	Members(ctx context.Context, namespace, key string) ([]string, error)
	RemoveMember(ctx context.Context, namespace, key, member string) error

	Close() error
}
