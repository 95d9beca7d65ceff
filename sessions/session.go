package sessions

import (
	"strconv"
	"strings"
	"time"
)

// State is the authentication state of a session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
)

// Session tracks one browser/agent authentication context across requests.
// Sessions start unauthenticated, gather request parameters as they go through the
// authentication steps and transition once to authenticated.
type Session struct {
	ID                 string     `json:"id"`                // Opaque random id, the session cookie value
	OutsideSID         string     `json:"sid"`               // Public id exposed as the sid claim
	State              State      `json:"state"`             // Authentication state
	UserRef            string     `json:"userRef,omitempty"` // Set only when authenticated
	AuthenticationTime time.Time  `json:"authnTime"`         // Immutable once set
	CreatedAt          time.Time  `json:"createdAt"`         // When the session was created
	LastUsedAt         time.Time  `json:"lastUsedAt"`        // Drives expiry
	Attributes         Attributes `json:"attributes"`        // In-flight request parameters and step markers
	SessionState       string     `json:"sessionState"`      // Front-channel session_state value
	Persisted          bool       `json:"persisted"`         // Written to the durable store
}

// IsAuthenticated reports whether the session completed authentication.
func (s *Session) IsAuthenticated() bool {
	return s.State == StateAuthenticated
}

// AuthStep returns the current step, 1 when unset or malformed.
func (s *Session) AuthStep() int {
	step, err := strconv.Atoi(s.Attributes[AttrAuthStep])
	if err != nil || step < 1 {
		return 1
	}
	return step
}

// Acr returns the acr the session authenticated with, falling back to the requested acr_values.
func (s *Session) Acr() string {
	if acr := strings.TrimSpace(s.Attributes[AttrAcr]); acr != "" {
		return acr
	}
	return strings.TrimSpace(s.Attributes[AttrAcrValues])
}

// Prompts returns the space separated prompt values.
func (s *Session) Prompts() []string {
	return strings.Fields(s.Attributes[AttrPrompt])
}

// IsStepPassed reports whether step carries a completion marker.
func (s *Session) IsStepPassed(step int) bool {
	return s.Attributes[StepPassedKey(step)] == "true"
}
