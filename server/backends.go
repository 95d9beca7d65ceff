package server

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/JanssenProject/jans-sub021/cache"
	"github.com/JanssenProject/jans-sub021/cache/memcache"
	"github.com/JanssenProject/jans-sub021/cache/rediscache"
	"github.com/JanssenProject/jans-sub021/internal/config"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/JanssenProject/jans-sub021/storage/bboltstore"
	"github.com/JanssenProject/jans-sub021/storage/memstore"
)

const (
	BackendBBolt  = "bbolt"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const (
	connectAttempts = 5
	boltOpenTimeout = time.Second
)

// retry calls open until it succeeds, only retrying unavailable backends.
func retry[T any](ctx context.Context, s *Server, what string, open func() (T, error)) (T, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.retryInterval
	expBackoff.Reset()

	return backoff.Retry(ctx, func() (T, error) {
		v, err := open()
		if err != nil && !ierrors.Is(err, ierrors.ErrBackendUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.logger.Warn().Err(err).Str("backend", what).Dur("retry_in", d).Msg("backend unavailable")
		}),
	)
}

func (s *Server) openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch backend := cfg.GetStorageBackend(); backend {
	case BackendMemory:
		return memstore.New(), nil
	case BackendBBolt:
		path := cfg.GetBoltPath()
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrapf(err, "[Server.openStore] creating %s", dir)
			}
		}
		// bbolt holds a file lock, a second process waits on it until the timeout.
		store, err := retry(ctx, s, backend, func() (*bboltstore.Store, error) {
			return bboltstore.Open(path, &bbolt.Options{Timeout: boltOpenTimeout})
		})
		if err != nil {
			return nil, errors.Wrap(err, "[Server.openStore]")
		}
		return store, nil
	default:
		return nil, errors.Wrapf(ierrors.ErrInvalidRequest, "[Server.openStore] unknown storage backend %q", backend)
	}
}

// openCache returns the cache and, for the in-process cache, its cleaner.
func (s *Server) openCache(ctx context.Context, cfg config.StorageConfig) (cache.Cache, *memcache.Cache, error) {
	switch backend := cfg.GetCacheBackend(); backend {
	case BackendMemory:
		c := memcache.New(memcache.WithNowFunc(s.nowFunc))
		return c, c, nil
	case BackendRedis:
		c, err := retry(ctx, s, backend, func() (*rediscache.Cache, error) {
			return rediscache.New(ctx, rediscache.Config{
				Addr:      cfg.GetRedisAddr(),
				Password:  cfg.GetRedisPassword(),
				DB:        cfg.GetRedisDB(),
				KeyPrefix: cfg.GetCacheKeyPrefix(),
			})
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "[Server.openCache]")
		}
		return c, nil, nil
	default:
		return nil, nil, errors.Wrapf(ierrors.ErrInvalidRequest, "[Server.openCache] unknown cache backend %q", backend)
	}
}
