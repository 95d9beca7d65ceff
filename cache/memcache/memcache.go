// Package memcache is an in-process cache.Cache with lazy expiry and a Cleanup sweep.
package memcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JanssenProject/jans-sub021/cache"
)

type item struct {
	value     []byte
	members   map[string]struct{}
	expiresAt time.Time // zero means no expiry
}

func (i *item) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// Cache is a simple in-memory implementation
type Cache struct {
	items   map[string]map[string]*item
	mu      sync.RWMutex
	nowFunc func() time.Time
}

var _ cache.Cache = (*Cache)(nil)

// Option defines a function type to modify the Cache instance.
type Option func(*Cache)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(c *Cache) {
		c.nowFunc = now
	}
}

func New(options ...Option) *Cache {
	c := &Cache{
		items:   make(map[string]map[string]*item),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.nowFunc().Add(ttl)
}

// live returns the unexpired item. Callers hold a lock.
func (c *Cache) live(namespace, key string) *item {
	it, ok := c.items[namespace][key]
	if !ok || it.expired(c.nowFunc()) {
		return nil
	}
	return it
}

func (c *Cache) ns(namespace string) map[string]*item {
	n, ok := c.items[namespace]
	if !ok {
		n = make(map[string]*item)
		c.items[namespace] = n
	}
	return n
}

func (c *Cache) Get(_ context.Context, namespace, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it := c.live(namespace, key)
	if it == nil || it.value == nil {
		return nil, cache.ErrMiss
	}
	return append([]byte(nil), it.value...), nil
}

func (c *Cache) Put(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	c.ns(namespace)[key] = &item{
		value:     v,
		expiresAt: c.expiry(ttl),
	}
	return nil
}

func (c *Cache) Take(_ context.Context, namespace, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(namespace, key)
	if it == nil || it.value == nil {
		return nil, cache.ErrMiss
	}
	delete(c.items[namespace], key)
	return it.value, nil
}

func (c *Cache) Remove(_ context.Context, namespace, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items[namespace], key)
	return nil
}

func (c *Cache) RemoveAll(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, namespace)
	return nil
}

func (c *Cache) AddMember(_ context.Context, namespace, key, member string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	expiresAt := c.expiry(ttl)
	it := c.live(namespace, key)
	if it == nil || it.members == nil {
		it = &item{members: make(map[string]struct{}), expiresAt: expiresAt}
		c.ns(namespace)[key] = it
	}
	it.members[member] = struct{}{}
	// Zero means never expires.
	if !it.expiresAt.IsZero() && (expiresAt.IsZero() || expiresAt.After(it.expiresAt)) {
		it.expiresAt = expiresAt
	}
	return nil
}

func (c *Cache) Members(_ context.Context, namespace, key string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it := c.live(namespace, key)
	if it == nil {
		return []string{}, nil
	}
	out := make([]string, 0, len(it.members))
	for m := range it.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Cache) RemoveMember(_ context.Context, namespace, key, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.live(namespace, key)
	if it == nil {
		return nil
	}
	delete(it.members, member)
	if len(it.members) == 0 {
		delete(c.items[namespace], key)
	}
	return nil
}

// Cleanup removes expired entries. Returns the number removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	removed := 0
	for _, n := range c.items {
		for key, it := range n {
			if it.expired(now) {
				delete(n, key)
				removed++
			}
		}
	}
	return removed
}

// Dump returns every stored value and set member, expired or not.
func (c *Cache) Dump() [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out [][]byte
	for _, n := range c.items {
		for key, it := range n {
			out = append(out, []byte(key))
			if it.value != nil {
				out = append(out, it.value)
			}
			for m := range it.members {
				out = append(out, []byte(m))
			}
		}
	}
	return out
}

func (c *Cache) Close() error {
	return nil
}
