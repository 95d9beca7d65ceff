package config

import (
	"os"

	"github.com/spf13/viper"
)

const (
	appNameKey   = "app.name"
	envKey       = "env"
	logLevelKey  = "log.level"
	logPrettyKey = "log.pretty"
	issuerKey    = "issuer"
)

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetLogPretty() bool
	GetIssuer() string
}

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameKey)
}

func (e EnvVars) GetEnv() string {
	return e.v.GetString(envKey)
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelKey)
}

func (e EnvVars) GetLogPretty() bool {
	return e.v.GetBool(logPrettyKey)
}

// GetIssuer returns the issuer expected in id_token_hint values (e.g., "https://auth.example.com")
func (e EnvVars) GetIssuer() string {
	return e.v.GetString(issuerKey)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
