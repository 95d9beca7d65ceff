// Package clients describes the relying parties allowed to start authorization flows.
package clients

import (
	"slices"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidScope = errors.New("invalid scope")

// ClientType tells whether a relying party can hold a secret.
type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential"
	ClientTypePublic       ClientType = "public"
)

// Client is a registered relying party as the session engine sees it. Only the
// attributes that drive consent, token lifetimes and redirect checks are kept.
type Client struct {
	ID           string     `json:"id"`
	Type         ClientType `json:"type"`
	Description  string     `json:"description,omitempty"`
	RedirectURIs []string   `json:"redirectURIs"`
	// Scopes the client may request. An empty list allows none.
	Scopes []string `json:"scopes"`

	// Trusted clients never see the consent step.
	Trusted bool `json:"trusted"`
	// PreAuthorized clients count as consented without a ledger lookup.
	PreAuthorized bool `json:"preAuthorized"`
	// PersistAuthorizations keeps consent records when the session ends.
	PersistAuthorizations bool `json:"persistAuthorizations"`
	// AccessTokenLifetime overrides the deployment default when positive.
	AccessTokenLifetime time.Duration `json:"accessTokenLifetime,omitempty"`
	// SecretExpiresAt zero means the secret never expires.
	SecretExpiresAt time.Time `json:"secretExpiresAt,omitempty"`
}

func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

func (c *Client) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// ValidateScopes fails with ErrInvalidScope on the first space separated scope
// the client is not registered for.
func (c *Client) ValidateScopes(requested string) error {
	for _, scope := range strings.Fields(requested) {
		if !c.HasScope(scope) {
			return errors.Wrapf(ErrInvalidScope, "client %s: %s", c.ID, scope)
		}
	}
	return nil
}

// SecretExpired reports whether the client secret has expired at now.
func (c *Client) SecretExpired(now time.Time) bool {
	if c.SecretExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.SecretExpiresAt)
}

// HasRedirectURI does an exact match, no normalisation.
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}
