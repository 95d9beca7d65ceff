package token

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// Type is the kind of grant artifact.
type Type string

const (
	TypeAuthorizationCode Type = "authorization_code"
	TypeAccessToken       Type = "access_token"
	TypeRefreshToken      Type = "refresh_token"
	TypeIDToken           Type = "id_token"
)

// Tier is where a record lives.
type Tier string

const (
	TierCache   Tier = "cache"
	TierDurable Tier = "durable"
)

// Record is one issued token or code. Code holds the digest of the raw value, never
// the raw value itself.
type Record struct {
	Code                string    `json:"code"`
	Type                Type      `json:"type"`
	ClientID            string    `json:"clientId"`
	GrantID             string    `json:"grantId"`
	SessionRef          string    `json:"sessionRef,omitempty"`
	UserRef             string    `json:"userRef,omitempty"`
	Scope               string    `json:"scope,omitempty"`
	Nonce               string    `json:"nonce,omitempty"`
	IsImplicitFlow      bool      `json:"implicit,omitempty"`
	Tier                Tier      `json:"tier"`
	CreatedAt           time.Time `json:"createdAt"`
	ExpiresAt           time.Time `json:"expiresAt,omitempty"`
	CodeChallenge       string    `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string    `json:"codeChallengeMethod,omitempty"`
}

// IssueRequest describes a record to issue. RawCode is hashed before anything is stored.
type IssueRequest struct {
	Type                Type
	ClientID            string
	GrantID             string // Generated when empty
	SessionRef          string
	UserRef             string
	Scope               string
	Nonce               string
	IsImplicitFlow      bool
	RawCode             string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Policy is the token routing and lifetime configuration.
type Policy struct {
	PersistAccessToken          bool
	PersistIDToken              bool
	PersistRefreshToken         bool
	CacheAllImplicitFlowObjects bool

	AuthorizationCodeLifetime time.Duration
	AccessTokenLifetime       time.Duration
	RefreshTokenLifetime      time.Duration
	IDTokenLifetime           time.Duration
}

// NewCode returns a random url-safe token value.
func NewCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
