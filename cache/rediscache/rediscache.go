// Package rediscache implements cache.Cache on Redis. Sets back the reverse indices so
// concurrent writers merge with SADD instead of overwriting each other.
package rediscache

import (
	"context"
	"errors"
	"time"

	"github.com/JanssenProject/jans-sub021/cache"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings for a standalone Redis.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Cache struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ cache.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, ierrors.Unavailable(err, "[rediscache.New] ping %s", cfg.Addr)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
// This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Cache {
	return &Cache{client: client, keyPrefix: keyPrefix}
}

func (c *Cache) key(namespace, key string) string {
	return c.keyPrefix + namespace + ":" + key
}

func ttlOrNone(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (c *Cache) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, c.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, ierrors.Unavailable(err, "[rediscache.Get] %s", namespace)
	}
	return data, nil
}

func (c *Cache) Take(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := c.client.GetDel(ctx, c.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrMiss
		}
		return nil, ierrors.Unavailable(err, "[rediscache.Take] %s", namespace)
	}
	return data, nil
}

func (c *Cache) Put(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.key(namespace, key), value, ttlOrNone(ttl)).Err()
	return ierrors.Unavailable(err, "[rediscache.Put] %s", namespace)
}

func (c *Cache) Remove(ctx context.Context, namespace, key string) error {
	err := c.client.Del(ctx, c.key(namespace, key)).Err()
	return ierrors.Unavailable(err, "[rediscache.Remove] %s", namespace)
}

func (c *Cache) RemoveAll(ctx context.Context, namespace string) error {
	iter := c.client.Scan(ctx, 0, c.key(namespace, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return ierrors.Unavailable(err, "[rediscache.RemoveAll] scan %s", namespace)
	}
	if len(keys) == 0 {
		return nil
	}
	err := c.client.Del(ctx, keys...).Err()
	return ierrors.Unavailable(err, "[rediscache.RemoveAll] %s", namespace)
}

// addMemberScript adds ARGV[1] to the set and extends its expiry to ARGV[2] ms when
// that is later than the current one. A set without expiry keeps none.
var addMemberScript = redis.NewScript(`
local added = redis.call('SADD', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl <= 0 then
  redis.call('PERSIST', KEYS[1])
  return added
end
local current = redis.call('PTTL', KEYS[1])
local created = added == 1 and redis.call('SCARD', KEYS[1]) == 1
if (current == -1 and created) or (current >= 0 and current < ttl) then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return added
`)

func (c *Cache) AddMember(ctx context.Context, namespace, key, member string, ttl time.Duration) error {
	ms := ttl.Milliseconds()
	if ttl > 0 && ms == 0 {
		ms = 1
	}
	err := addMemberScript.Run(ctx, c.client, []string{c.key(namespace, key)}, member, ms).Err()
	if errors.Is(err, redis.Nil) {
		err = nil
	}
	return ierrors.Unavailable(err, "[rediscache.AddMember] %s", namespace)
}

func (c *Cache) Members(ctx context.Context, namespace, key string) ([]string, error) {
	members, err := c.client.SMembers(ctx, c.key(namespace, key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, ierrors.Unavailable(err, "[rediscache.Members] %s", namespace)
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func (c *Cache) RemoveMember(ctx context.Context, namespace, key, member string) error {
	err := c.client.SRem(ctx, c.key(namespace, key), member).Err()
	return ierrors.Unavailable(err, "[rediscache.RemoveMember] %s", namespace)
}

func (c *Cache) Close() error {
	return c.client.Close()
}
