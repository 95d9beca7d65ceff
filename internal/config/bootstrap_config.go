package config

import "github.com/spf13/viper"

const (
	bootstrapAdminUserKey     = "bootstrap.admin_user"
	bootstrapAdminPasswordKey = "bootstrap.admin_password"
	bootstrapAdminClientKey   = "bootstrap.admin_client_id"
	bootstrapRedirectURIsKey  = "bootstrap.redirect_uris"
)

// BootstrapConfig describes the administrator and client created on first start.
type BootstrapConfig interface {
	GetSystemAdminUser() string
	// GetSystemAdminPassword is generated when empty.
	GetSystemAdminPassword() string
	// GetAdminClientID disables the admin client when empty.
	GetAdminClientID() string
	GetAdminRedirectURIs() []string
}

type Bootstrap struct {
	v *viper.Viper
}

var _ BootstrapConfig = Bootstrap{}

func (b Bootstrap) GetSystemAdminUser() string {
	return b.v.GetString(bootstrapAdminUserKey)
}

func (b Bootstrap) GetSystemAdminPassword() string {
	return b.v.GetString(bootstrapAdminPasswordKey)
}

func (b Bootstrap) GetAdminClientID() string {
	return b.v.GetString(bootstrapAdminClientKey)
}

func (b Bootstrap) GetAdminRedirectURIs() []string {
	return b.v.GetStringSlice(bootstrapRedirectURIsKey)
}
