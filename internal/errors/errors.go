package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the session, token, consent and authenticator packages.
var (
	// Lookup misses. Expected on the request path and never logged as errors.
	ErrNotFound = errors.New("not found")

	// The acr requested on re-entry differs from the one the session was authenticated with.
	ErrAcrChanged = errors.New("acr changed")

	// Durable store or cache tier unreachable.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// A plugin raised or returned an error. Converted to a safe result at the selector boundary.
	ErrPluginFailure = errors.New("plugin failure")

	// Illegal state transition, e.g. re-authenticating an authenticated session.
	ErrInvalidState = errors.New("invalid state")

	// Flow level errors
	ErrAccessDenied    = errors.New("access denied")
	ErrConsentRequired = errors.New("consent required")
	ErrInvalidGrant    = errors.New("invalid grant")
	ErrInvalidRequest  = errors.New("invalid request")
)

// AcrChangedError is returned when an authenticated session is re-entered with a different acr.
// MethodEnabled reports whether the newly requested acr maps to an installed authenticator.
type AcrChangedError struct {
	SessionAcr    string
	RequestedAcr  string
	MethodEnabled bool
}

func (e *AcrChangedError) Error() string {
	return fmt.Sprintf("acr changed from %q to %q (method enabled: %t)", e.SessionAcr, e.RequestedAcr, e.MethodEnabled)
}

// Is lets errors.Is(err, ErrAcrChanged) match the typed error.
func (e *AcrChangedError) Is(target error) bool {
	return target == ErrAcrChanged
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Unavailable marks err as a backend failure, keeping the original cause in the chain.
func Unavailable(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrBackendUnavailable, err)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
