package auth

import (
	"fmt"
	"strings"

	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/utils"
	"github.com/JanssenProject/jans-sub021/sessions"
	"github.com/JanssenProject/jans-sub021/token"
)

var (
	ErrInvalidClient           = fmt.Errorf("%w: invalid client", ierrors.ErrInvalidRequest)
	ErrRedirectURIMismatch     = fmt.Errorf("%w: redirect_uri not registered", ierrors.ErrInvalidRequest)
	ErrUnsupportedResponseType = fmt.Errorf("%w: unsupported response_type", ierrors.ErrInvalidRequest)
	ErrPKCERequired            = fmt.Errorf("%w: PKCE required for public clients", ierrors.ErrInvalidRequest)
	ErrLoginRequired           = fmt.Errorf("%w: login required", ierrors.ErrAccessDenied)
)

// Response types. The implicit ones may be combined, e.g. "id_token token".
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// ResponseMode denotes how the authorization response parameters are returned to the client.
type ResponseMode string

const (
	QueryResponseMode    ResponseMode = "query"
	FragmentResponseMode ResponseMode = "fragment"
	FormPostResponseMode ResponseMode = "form_post"
)

const (
	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"

	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
)

// AuthorizeRequest holds the parameters of an authorization request as received at
// the authorization endpoint.
type AuthorizeRequest struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	ResponseMode        ResponseMode
	Scope               string
	State               string
	Nonce               string
	AcrValues           string
	Prompt              string
	AuthMode            string
	CodeChallenge       string
	CodeChallengeMethod string
	LoginHint           string
	MaxAge              string
	UILocales           string
}

// Params returns the request as session attributes, leaving out empty values.
func (r *AuthorizeRequest) Params() map[string]string {
	all := map[string]string{
		sessions.AttrClientID:            r.ClientID,
		sessions.AttrResponseType:        r.ResponseType,
		sessions.AttrRedirectURI:         r.RedirectURI,
		sessions.AttrResponseMode:        string(r.ResponseMode),
		sessions.AttrScope:               r.Scope,
		sessions.AttrState:               r.State,
		sessions.AttrNonce:               r.Nonce,
		sessions.AttrAcrValues:           r.AcrValues,
		sessions.AttrPrompt:              r.Prompt,
		sessions.AttrAuthMode:            r.AuthMode,
		sessions.AttrCodeChallenge:       r.CodeChallenge,
		sessions.AttrCodeChallengeMethod: r.CodeChallengeMethod,
		sessions.AttrLoginHint:           r.LoginHint,
		sessions.AttrMaxAge:              r.MaxAge,
		sessions.AttrUILocales:           r.UILocales,
	}
	params := make(map[string]string, len(all))
	for k, v := range all {
		if v != "" {
			params[k] = v
		}
	}
	return params
}

// requestFromSession rebuilds the authorization request a session carries.
func requestFromSession(s *sessions.Session) *AuthorizeRequest {
	a := s.Attributes
	return &AuthorizeRequest{
		ClientID:            a[sessions.AttrClientID],
		ResponseType:        a[sessions.AttrResponseType],
		RedirectURI:         a[sessions.AttrRedirectURI],
		ResponseMode:        ResponseMode(a[sessions.AttrResponseMode]),
		Scope:               a[sessions.AttrScope],
		State:               a[sessions.AttrState],
		Nonce:               a[sessions.AttrNonce],
		AcrValues:           a[sessions.AttrAcrValues],
		Prompt:              a[sessions.AttrPrompt],
		AuthMode:            a[sessions.AttrAuthMode],
		CodeChallenge:       a[sessions.AttrCodeChallenge],
		CodeChallengeMethod: a[sessions.AttrCodeChallengeMethod],
		LoginHint:           a[sessions.AttrLoginHint],
		MaxAge:              a[sessions.AttrMaxAge],
		UILocales:           a[sessions.AttrUILocales],
	}
}

func (r *AuthorizeRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

func (r *AuthorizeRequest) Prompts() []string {
	return strings.Fields(r.Prompt)
}

func (r *AuthorizeRequest) HasPrompt(prompt string) bool {
	return utils.NewStringSet(r.Prompts()...).Contains(prompt)
}

func (r *AuthorizeRequest) responseTypes() utils.StringSet {
	return utils.NewStringSet(strings.Fields(r.ResponseType)...)
}

// IsImplicit reports whether tokens are returned directly from the authorization endpoint.
func (r *AuthorizeRequest) IsImplicit() bool {
	return !r.responseTypes().Contains(ResponseTypeCode)
}

// DefaultResponseMode is query for the code flow and fragment for implicit flows.
func (r *AuthorizeRequest) DefaultResponseMode() ResponseMode {
	if r.ResponseMode != "" {
		return r.ResponseMode
	}
	if r.IsImplicit() {
		return FragmentResponseMode
	}
	return QueryResponseMode
}

// Validate checks the request against the registered client.
func (r *AuthorizeRequest) Validate(client *clients.Client) error {
	if client == nil {
		return ErrInvalidClient
	}
	if r.RedirectURI == "" || !client.HasRedirectURI(r.RedirectURI) {
		return ErrRedirectURIMismatch
	}

	types := r.responseTypes()
	if len(types) == 0 {
		return ErrUnsupportedResponseType
	}
	for t := range types {
		switch t {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
		default:
			return ErrUnsupportedResponseType
		}
	}
	if types.Contains(ResponseTypeCode) && len(types) > 1 {
		return ErrUnsupportedResponseType
	}

	if client.IsPublic() && !r.IsImplicit() && r.CodeChallenge == "" {
		return ErrPKCERequired
	}
	if err := validatePKCE(r.CodeChallenge, r.CodeChallengeMethod); err != nil {
		return err
	}

	if err := client.ValidateScopes(r.Scope); err != nil {
		return fmt.Errorf("%w: %w", ierrors.ErrInvalidRequest, err)
	}
	return nil
}

func validatePKCE(challenge, method string) error {
	if challenge == "" {
		if method != "" {
			return fmt.Errorf("%w: code_challenge_method without code_challenge", ierrors.ErrInvalidRequest)
		}
		return nil
	}
	if len(challenge) < 43 || len(challenge) > 128 {
		return fmt.Errorf("%w: code_challenge length must be between 43 and 128 characters", ierrors.ErrInvalidRequest)
	}
	switch method {
	case "", token.PKCEMethodPlain, token.PKCEMethodS256:
		return nil
	}
	return fmt.Errorf("%w: unsupported code_challenge_method %q", ierrors.ErrInvalidRequest, method)
}
