package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	sessionUnusedLifetimeKey          = "session.unused_lifetime"
	sessionUnauthenticatedLifetimeKey = "session.unauthenticated_unused_lifetime"
	sessionServerLifetimeKey          = "session.server_lifetime"
	sessionPersistOnPromptNoneKey     = "session.persist_on_prompt_none"
	sessionAllowedParametersKey       = "session.allowed_parameters"
)

type SessionConfig interface {
	// GetSessionUnusedLifetime bounds the time since last use. Never disables the check.
	GetSessionUnusedLifetime() time.Duration
	// GetSessionUnauthenticatedUnusedLifetime additionally bounds unauthenticated sessions.
	GetSessionUnauthenticatedUnusedLifetime() time.Duration
	// GetSessionServerLifetime is the absolute lifetime counted from authentication. 0 disables it.
	GetSessionServerLifetime() time.Duration
	GetSessionPersistOnPromptNone() bool
	// GetSessionAllowedParameters lists custom request parameters kept on the session.
	GetSessionAllowedParameters() []string
}

type Session struct {
	v *viper.Viper
}

var _ SessionConfig = Session{}

func (s Session) GetSessionUnusedLifetime() time.Duration {
	return seconds(s.v, sessionUnusedLifetimeKey)
}

func (s Session) GetSessionUnauthenticatedUnusedLifetime() time.Duration {
	return seconds(s.v, sessionUnauthenticatedLifetimeKey)
}

func (s Session) GetSessionServerLifetime() time.Duration {
	d := seconds(s.v, sessionServerLifetimeKey)
	if d < 0 {
		return 0
	}
	return d
}

func (s Session) GetSessionPersistOnPromptNone() bool {
	return s.v.GetBool(sessionPersistOnPromptNoneKey)
}

func (s Session) GetSessionAllowedParameters() []string {
	return s.v.GetStringSlice(sessionAllowedParametersKey)
}
