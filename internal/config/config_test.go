package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JanssenProject/jans-sub021/internal/config"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
session:
  unused_lifetime: 600
  persist_on_prompt_none: true
  allowed_parameters: [ui_locales, custom_hint]
token:
  persist_id_token: true
authenticators:
  - name: basic
    type: basic
    version: 1
    level: 10
    priority: 1
    usage_type: interactive
    enabled: true
    aliases: [pwd]
    attributes:
      realm: default
  - name: otp
    type: otp
    version: 2
    level: 20
    priority: 1
    usage_type: both
    enabled: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c := config.New(nil)

	require.Equal(t, 24*time.Hour, c.GetSessionUnusedLifetime())
	require.Equal(t, 2*time.Minute, c.GetSessionUnauthenticatedUnusedLifetime())
	require.False(t, c.GetSessionPersistOnPromptNone())
	require.True(t, c.GetPersistAccessToken())
	require.False(t, c.GetPersistIDToken())
	require.True(t, c.GetPersistRefreshToken())
	require.Equal(t, time.Minute, c.GetAuthorizationCodeLifetime())
	require.Equal(t, "bbolt", c.GetStorageBackend())
	require.Equal(t, "memory", c.GetCacheBackend())
	require.Equal(t, "jans:", c.GetCacheKeyPrefix())
	require.Equal(t, "admin", c.GetSystemAdminUser())
	require.Empty(t, c.GetSystemAdminPassword())
	require.Equal(t, "admin-console", c.GetAdminClientID())

	defs, err := c.LoadAuthenticatorDefinitions()
	require.NoError(t, err)
	require.Empty(t, defs)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("JANS_SESSION_UNUSED_LIFETIME", "-1")
	t.Setenv("JANS_TOKEN_PERSIST_ACCESS_TOKEN", "false")
	t.Setenv("JANS_SESSION_SERVER_LIFETIME", "-1")

	c := config.New(nil)
	require.Equal(t, config.Never, c.GetSessionUnusedLifetime())
	require.False(t, c.GetPersistAccessToken())
	require.Equal(t, time.Duration(0), c.GetSessionServerLifetime())
}

func TestLoadFile(t *testing.T) {
	c, err := config.Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	require.Equal(t, 10*time.Minute, c.GetSessionUnusedLifetime())
	require.True(t, c.GetSessionPersistOnPromptNone())
	require.Equal(t, []string{"ui_locales", "custom_hint"}, c.GetSessionAllowedParameters())
	require.True(t, c.GetPersistIDToken())

	defs, err := c.LoadAuthenticatorDefinitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Equal(t, "basic", defs[0].Name)
	require.Equal(t, 10, defs[0].Level)
	require.Equal(t, []string{"pwd"}, defs[0].Aliases)
	require.Equal(t, "default", defs[0].Attributes["realm"])
	require.True(t, defs[0].Enabled)
	require.Equal(t, "both", defs[1].UsageType)
	require.False(t, defs[1].Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
