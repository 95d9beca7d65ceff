package sessions

import (
	"fmt"
	"sort"
	"strings"
)

// Well known session attributes.
const (
	AttrClientID            = "client_id"
	AttrRedirectURI         = "redirect_uri"
	AttrScope               = "scope"
	AttrAcrValues           = "acr_values"
	AttrAcr                 = "acr"
	AttrAuthStep            = "auth_step"
	AttrAuthMode            = "auth_mode"
	AttrPrompt              = "prompt"
	AttrState               = "state"
	AttrNonce               = "nonce"
	AttrResponseType        = "response_type"
	AttrResponseMode        = "response_mode"
	AttrCodeChallenge       = "code_challenge"
	AttrCodeChallengeMethod = "code_challenge_method"
	AttrLoginHint           = "login_hint"
	AttrMaxAge              = "max_age"
	AttrUILocales           = "ui_locales"
	AttrOPBrowserState      = "opbs"

	stepPassedPrefix = "auth_step_passed_"
)

// DefaultAllowedParameters are the request parameters always kept on a session.
var DefaultAllowedParameters = []string{
	AttrClientID,
	AttrRedirectURI,
	AttrScope,
	AttrAcrValues,
	AttrAuthMode,
	AttrPrompt,
	AttrState,
	AttrNonce,
	AttrResponseType,
	AttrResponseMode,
	AttrCodeChallenge,
	AttrCodeChallengeMethod,
	AttrLoginHint,
	AttrMaxAge,
	AttrUILocales,
}

// StepPassedKey is the completion marker attribute for step.
func StepPassedKey(step int) string {
	return fmt.Sprintf("%s%d", stepPassedPrefix, step)
}

// Attributes are the string parameters carried by a session. Iteration order is
// given by Keys.
type Attributes map[string]string

// Keys returns the attribute names in ascending order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (a Attributes) Clone() Attributes {
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// EqualIgnoring compares a and b, skipping the named attributes.
func (a Attributes) EqualIgnoring(b Attributes, ignore ...string) bool {
	skip := make(map[string]struct{}, len(ignore))
	for _, k := range ignore {
		skip[k] = struct{}{}
	}
	count := func(m Attributes) int {
		n := 0
		for k := range m {
			if _, ok := skip[k]; !ok {
				n++
			}
		}
		return n
	}
	if count(a) != count(b) {
		return false
	}
	for k, v := range a {
		if _, ok := skip[k]; ok {
			continue
		}
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

// clearStepMarkers removes every auth_step_passed_* attribute.
func (a Attributes) clearStepMarkers() {
	for k := range a {
		if strings.HasPrefix(k, stepPassedPrefix) {
			delete(a, k)
		}
	}
}
