package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Never is returned by lifetime getters configured with -1.
const Never time.Duration = -1

const envPrefix = "JANS"

type Config interface {
	EnvConfig
	SessionConfig
	TokenConfig
	ScheduleConfig
	StorageConfig
	AuthenticatorConfig
	BootstrapConfig
}

type mainConfig struct {
	EnvVars
	Session
	Token
	Schedule
	Storage
	Authenticators
	Bootstrap
}

// New returns a Config reading from v. Defaults are registered on v and environment
// variables prefixed with JANS_ override any key (session.unused_lifetime -> JANS_SESSION_UNUSED_LIFETIME).
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return mainConfig{
		EnvVars:        EnvVars{v: v},
		Session:        Session{v: v},
		Token:          Token{v: v},
		Schedule:       Schedule{v: v},
		Storage:        Storage{v: v},
		Authenticators: Authenticators{v: v},
		Bootstrap:      Bootstrap{v: v},
	}
}

// Load reads the config file at path into a new viper instance and returns the Config.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] reading %s", path)
		}
	}
	return New(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(appNameKey, "Jans Session Engine")
	v.SetDefault(envKey, "DEV")
	v.SetDefault(logLevelKey, "info")
	v.SetDefault(logPrettyKey, false)
	v.SetDefault(issuerKey, "http://localhost:8080")

	v.SetDefault(sessionUnusedLifetimeKey, 86400)
	v.SetDefault(sessionUnauthenticatedLifetimeKey, 120)
	v.SetDefault(sessionServerLifetimeKey, 86400)
	v.SetDefault(sessionPersistOnPromptNoneKey, false)
	v.SetDefault(sessionAllowedParametersKey, []string{})

	v.SetDefault(tokenPersistAccessKey, true)
	v.SetDefault(tokenPersistIDKey, false)
	v.SetDefault(tokenPersistRefreshKey, true)
	v.SetDefault(tokenCacheImplicitKey, false)
	v.SetDefault(tokenCodeLifetimeKey, 60)
	v.SetDefault(tokenAccessLifetimeKey, 300)
	v.SetDefault(tokenRefreshLifetimeKey, 14*24*3600)
	v.SetDefault(tokenIDLifetimeKey, 3600)
	v.SetDefault(tokenHashKeyKey, "")

	v.SetDefault(scheduleCleanupKey, 60)
	v.SetDefault(scheduleReloadKey, 30)
	v.SetDefault(scheduleKeyCheckKey, 3600)
	v.SetDefault(keyRotationKey, 48*3600)

	v.SetDefault(storageBackendKey, "bbolt")
	v.SetDefault(storageBoltPathKey, "./data/jans.db")
	v.SetDefault(cacheBackendKey, "memory")
	v.SetDefault(cacheRedisAddrKey, "localhost:6379")
	v.SetDefault(cacheRedisPasswordKey, "")
	v.SetDefault(cacheRedisDBKey, 0)
	v.SetDefault(cacheKeyPrefixKey, "jans:")

	v.SetDefault(authnUseHighestLevelKey, false)

	v.SetDefault(bootstrapAdminUserKey, "admin")
	v.SetDefault(bootstrapAdminPasswordKey, "")
	v.SetDefault(bootstrapAdminClientKey, "admin-console")
	v.SetDefault(bootstrapRedirectURIsKey, []string{"http://localhost:8080/callback"})
}

// seconds converts a configured number of seconds, keeping -1 as Never.
func seconds(v *viper.Viper, key string) time.Duration {
	s := v.GetInt(key)
	if s == -1 {
		return Never
	}
	return time.Duration(s) * time.Second
}
