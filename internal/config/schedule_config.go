package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	scheduleCleanupKey  = "schedule.cleanup_interval"
	scheduleReloadKey   = "schedule.authenticator_reload_interval"
	scheduleKeyCheckKey = "schedule.key_check_interval"
	keyRotationKey      = "keys.rotation_interval"
)

type ScheduleConfig interface {
	GetCleanupInterval() time.Duration
	GetAuthenticatorReloadInterval() time.Duration
	GetKeyCheckInterval() time.Duration
	// GetKeyRotationInterval is the age at which the signing key is replaced.
	GetKeyRotationInterval() time.Duration
}

type Schedule struct {
	v *viper.Viper
}

var _ ScheduleConfig = Schedule{}

func (s Schedule) GetCleanupInterval() time.Duration {
	return seconds(s.v, scheduleCleanupKey)
}

func (s Schedule) GetAuthenticatorReloadInterval() time.Duration {
	return seconds(s.v, scheduleReloadKey)
}

func (s Schedule) GetKeyCheckInterval() time.Duration {
	return seconds(s.v, scheduleKeyCheckKey)
}

func (s Schedule) GetKeyRotationInterval() time.Duration {
	return seconds(s.v, keyRotationKey)
}
