package config

import "github.com/spf13/viper"

const (
	storageBackendKey     = "storage.backend"
	storageBoltPathKey    = "storage.bbolt_path"
	cacheBackendKey       = "cache.backend"
	cacheRedisAddrKey     = "cache.redis.addr"
	cacheRedisPasswordKey = "cache.redis.password"
	cacheRedisDBKey       = "cache.redis.db"
	cacheKeyPrefixKey     = "cache.key_prefix"
)

type StorageConfig interface {
	// GetStorageBackend is "bbolt" or "memory".
	GetStorageBackend() string
	GetBoltPath() string
	// GetCacheBackend is "memory" or "redis".
	GetCacheBackend() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetCacheKeyPrefix() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetStorageBackend() string {
	return s.v.GetString(storageBackendKey)
}

func (s Storage) GetBoltPath() string {
	return s.v.GetString(storageBoltPathKey)
}

func (s Storage) GetCacheBackend() string {
	return s.v.GetString(cacheBackendKey)
}

func (s Storage) GetRedisAddr() string {
	return s.v.GetString(cacheRedisAddrKey)
}

func (s Storage) GetRedisPassword() string {
	return s.v.GetString(cacheRedisPasswordKey)
}

func (s Storage) GetRedisDB() int {
	return s.v.GetInt(cacheRedisDBKey)
}

func (s Storage) GetCacheKeyPrefix() string {
	return s.v.GetString(cacheKeyPrefixKey)
}
