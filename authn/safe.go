package authn

import (
	"context"
	"fmt"
)

// safeCall runs fn and returns fallback when it fails or panics.
func safeCall[T any](s *Selector, cfg *Configuration, op string, fallback T, fn func() (T, error)) (result T) {
	if cfg == nil || cfg.Plugin == nil {
		return fallback
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("authenticator", cfg.Name).Str("op", op).Str("panic", fmt.Sprint(r)).Msg("authenticator panicked")
			result = fallback
		}
	}()
	v, err := fn()
	if err != nil {
		s.logger.Err(err).Str("authenticator", cfg.Name).Str("op", op).Msg("authenticator failed")
		return fallback
	}
	return v
}

func (s *Selector) ExecuteIsValid(usage UsageType, cfg *Configuration) bool {
	return safeCall(s, cfg, "IsValidAuthenticationMethod", false, func() (bool, error) {
		return cfg.Plugin.IsValidAuthenticationMethod(usage, cfg.Attributes)
	})
}

func (s *Selector) ExecuteAlternative(usage UsageType, cfg *Configuration) string {
	return safeCall(s, cfg, "GetAlternativeAuthenticationMethod", "", func() (string, error) {
		return cfg.Plugin.GetAlternativeAuthenticationMethod(usage, cfg.Attributes)
	})
}

// ExecuteAuthenticate runs one authentication step. On success req.UserRef names the user.
func (s *Selector) ExecuteAuthenticate(ctx context.Context, cfg *Configuration, req *StepRequest) bool {
	return safeCall(s, cfg, "Authenticate", false, func() (bool, error) {
		return cfg.Plugin.Authenticate(ctx, cfg.Attributes, req)
	})
}

func (s *Selector) ExecutePrepareForStep(ctx context.Context, cfg *Configuration, params map[string]string, step int) bool {
	return safeCall(s, cfg, "PrepareForStep", false, func() (bool, error) {
		return cfg.Plugin.PrepareForStep(ctx, cfg.Attributes, params, step)
	})
}

// ExecuteStepCount returns -1 when the plugin fails.
func (s *Selector) ExecuteStepCount(cfg *Configuration) int {
	return safeCall(s, cfg, "GetCountAuthenticationSteps", -1, func() (int, error) {
		return cfg.Plugin.GetCountAuthenticationSteps(cfg.Attributes)
	})
}

func (s *Selector) ExecuteExtraParameters(cfg *Configuration, step int) []string {
	return safeCall(s, cfg, "GetExtraParametersForStep", []string{}, func() ([]string, error) {
		return cfg.Plugin.GetExtraParametersForStep(cfg.Attributes, step)
	})
}

func (s *Selector) ExecutePageForStep(cfg *Configuration, step int) string {
	return safeCall(s, cfg, "GetPageForStep", "", func() (string, error) {
		return cfg.Plugin.GetPageForStep(cfg.Attributes, step)
	})
}

func (s *Selector) ExecuteLogout(ctx context.Context, cfg *Configuration, params map[string]string) bool {
	return safeCall(s, cfg, "Logout", false, func() (bool, error) {
		return cfg.Plugin.Logout(ctx, cfg.Attributes, params)
	})
}

// ExecuteNextStep returns -1 when the plugin does not navigate or fails.
func (s *Selector) ExecuteNextStep(cfg *Configuration, params map[string]string, step int) int {
	return safeCall(s, cfg, "GetNextStep", -1, func() (int, error) {
		nav, ok := cfg.Plugin.(StepNavigator)
		if !ok {
			return -1, nil
		}
		return nav.GetNextStep(cfg.Attributes, params, step)
	})
}

// ExecuteLogoutURL returns the external logout url, empty when there is none.
func (s *Selector) ExecuteLogoutURL(cfg *Configuration, params map[string]string) string {
	return safeCall(s, cfg, "GetLogoutExternalURL", "", func() (string, error) {
		p, ok := cfg.Plugin.(LogoutURLProvider)
		if !ok {
			return "", nil
		}
		return p.GetLogoutExternalURL(cfg.Attributes, params)
	})
}
