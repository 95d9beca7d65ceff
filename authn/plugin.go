// Package authn selects the authenticator that runs at each step of a login and
// executes it behind panic-safe wrappers.
package authn

import "context"

// UsageType is the context an authenticator applies to.
type UsageType string

const (
	UsageInteractive UsageType = "interactive"
	UsageService     UsageType = "service"
	UsageLogout      UsageType = "logout"
	// UsageBoth registers the authenticator for every usage.
	UsageBoth UsageType = "both"
)

// ParseUsageType maps a configured usage name, defaulting to interactive.
func ParseUsageType(s string) UsageType {
	switch UsageType(s) {
	case UsageService, UsageLogout, UsageBoth:
		return UsageType(s)
	}
	return UsageInteractive
}

// Attributes is the configuration attribute map handed to a plugin.
type Attributes map[string]string

// StepRequest is the input of a single authentication step. A plugin that
// authenticates the user sets UserRef.
type StepRequest struct {
	Step    int
	Params  map[string]string
	UserRef string
}

// Plugin is the authenticator capability set. Any error or panic is turned into a
// safe negative result by the Selector.
type Plugin interface {
	Init(attrs Attributes) error
	IsValidAuthenticationMethod(usage UsageType, attrs Attributes) (bool, error)
	GetAlternativeAuthenticationMethod(usage UsageType, attrs Attributes) (string, error)
	GetCountAuthenticationSteps(attrs Attributes) (int, error)
	Authenticate(ctx context.Context, attrs Attributes, req *StepRequest) (bool, error)
	PrepareForStep(ctx context.Context, attrs Attributes, params map[string]string, step int) (bool, error)
	GetExtraParametersForStep(attrs Attributes, step int) ([]string, error)
	GetPageForStep(attrs Attributes, step int) (string, error)
	Logout(ctx context.Context, attrs Attributes, params map[string]string) (bool, error)
	GetAPIVersion() int
}

// StepNavigator is implemented by plugins that jump between steps.
type StepNavigator interface {
	GetNextStep(attrs Attributes, params map[string]string, step int) (int, error)
}

// LogoutURLProvider is implemented by plugins that delegate logout to an external party.
type LogoutURLProvider interface {
	GetLogoutExternalURL(attrs Attributes, params map[string]string) (string, error)
}

// Factory builds an uninitialized plugin.
type Factory func() Plugin

// Factories maps plugin types to their factory.
type Factories map[string]Factory
