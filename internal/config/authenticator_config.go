package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	authnDefinitionsKey     = "authenticators"
	authnUseHighestLevelKey = "authn.use_highest_level_if_acr_not_found"
)

// AuthenticatorDefinition is one installed authenticator as written in the config file.
type AuthenticatorDefinition struct {
	Name       string            `mapstructure:"name"`
	Type       string            `mapstructure:"type"`
	Version    int               `mapstructure:"version"`
	Level      int               `mapstructure:"level"`
	Priority   int               `mapstructure:"priority"`
	UsageType  string            `mapstructure:"usage_type"`
	Enabled    bool              `mapstructure:"enabled"`
	Aliases    []string          `mapstructure:"aliases"`
	Attributes map[string]string `mapstructure:"attributes"`
}

type AuthenticatorConfig interface {
	// LoadAuthenticatorDefinitions re-reads the config file, when one is used, and returns the definitions.
	LoadAuthenticatorDefinitions() ([]AuthenticatorDefinition, error)
	GetUseHighestLevelIfAcrNotFound() bool
}

type Authenticators struct {
	v *viper.Viper
}

var _ AuthenticatorConfig = Authenticators{}

func (a Authenticators) LoadAuthenticatorDefinitions() ([]AuthenticatorDefinition, error) {
	if a.v.ConfigFileUsed() != "" {
		if err := a.v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "[Authenticators.LoadAuthenticatorDefinitions] re-reading config")
		}
	}
	var defs []AuthenticatorDefinition
	if err := a.v.UnmarshalKey(authnDefinitionsKey, &defs); err != nil {
		return nil, errors.Wrap(err, "[Authenticators.LoadAuthenticatorDefinitions] decoding definitions")
	}
	return defs, nil
}

func (a Authenticators) GetUseHighestLevelIfAcrNotFound() bool {
	return a.v.GetBool(authnUseHighestLevelKey)
}
