package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	tokenPersistAccessKey   = "token.persist_access_token"
	tokenPersistIDKey       = "token.persist_id_token"
	tokenPersistRefreshKey  = "token.persist_refresh_token"
	tokenCacheImplicitKey   = "token.cache_all_implicit_flow_objects"
	tokenCodeLifetimeKey    = "token.authorization_code_lifetime"
	tokenAccessLifetimeKey  = "token.access_token_lifetime"
	tokenRefreshLifetimeKey = "token.refresh_token_lifetime"
	tokenIDLifetimeKey      = "token.id_token_lifetime"
	tokenHashKeyKey         = "token.hash_key"
)

type TokenConfig interface {
	GetPersistAccessToken() bool
	GetPersistIDToken() bool
	GetPersistRefreshToken() bool
	GetCacheAllImplicitFlowObjects() bool
	GetAuthorizationCodeLifetime() time.Duration
	GetAccessTokenLifetime() time.Duration
	GetRefreshTokenLifetime() time.Duration
	GetIDTokenLifetime() time.Duration
	// GetTokenHashKey keys the token code digest. Empty selects plain sha256.
	GetTokenHashKey() string
}

type Token struct {
	v *viper.Viper
}

var _ TokenConfig = Token{}

func (t Token) GetPersistAccessToken() bool {
	return t.v.GetBool(tokenPersistAccessKey)
}

func (t Token) GetPersistIDToken() bool {
	return t.v.GetBool(tokenPersistIDKey)
}

func (t Token) GetPersistRefreshToken() bool {
	return t.v.GetBool(tokenPersistRefreshKey)
}

func (t Token) GetCacheAllImplicitFlowObjects() bool {
	return t.v.GetBool(tokenCacheImplicitKey)
}

func (t Token) GetAuthorizationCodeLifetime() time.Duration {
	return seconds(t.v, tokenCodeLifetimeKey)
}

func (t Token) GetAccessTokenLifetime() time.Duration {
	return seconds(t.v, tokenAccessLifetimeKey)
}

func (t Token) GetRefreshTokenLifetime() time.Duration {
	return seconds(t.v, tokenRefreshLifetimeKey)
}

func (t Token) GetIDTokenLifetime() time.Duration {
	return seconds(t.v, tokenIDLifetimeKey)
}

func (t Token) GetTokenHashKey() string {
	return t.v.GetString(tokenHashKeyKey)
}
