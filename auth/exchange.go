package auth

import (
	"context"

	"github.com/pkg/errors"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/sessions"
	"github.com/JanssenProject/jans-sub021/token"
)

// ExchangeRequest holds the parameters of an authorization_code token request.
type ExchangeRequest struct {
	ClientID     string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// TokenResponse is the token endpoint response (RFC 6749 section 5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ExchangeCode redeems an authorization code. The code is single use: redeeming it
// twice revokes every token of its grant.
func (f *Flow) ExchangeCode(ctx context.Context, req ExchangeRequest) (*TokenResponse, error) {
	client, err := f.clients.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidClient, "[Flow.ExchangeCode] %s", req.ClientID)
	}
	code, err := f.tokens.Consume(ctx, req.Code, client.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.ExchangeCode]")
	}
	if err := token.VerifyPKCE(code, req.CodeVerifier); err != nil {
		return nil, errors.Wrap(err, "[Flow.ExchangeCode]")
	}

	s, err := f.sessions.Resolve(ctx, code.SessionRef)
	if errors.Is(err, ierrors.ErrNotFound) {
		return nil, errors.Wrap(ierrors.ErrInvalidGrant, "[Flow.ExchangeCode] session ended")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.ExchangeCode]")
	}
	if s.Attributes[sessions.AttrRedirectURI] != req.RedirectURI {
		return nil, errors.Wrap(ierrors.ErrInvalidGrant, "[Flow.ExchangeCode] redirect_uri mismatch")
	}

	g := grant{
		session:  s,
		clientID: client.ID,
		grantID:  code.GrantID,
		scope:    code.Scope,
		nonce:    code.Nonce,
	}
	resp := &TokenResponse{TokenType: tokenTypeBearer, Scope: code.Scope}
	if resp.AccessToken, resp.ExpiresIn, err = f.issueOpaque(ctx, token.TypeAccessToken, g); err != nil {
		return nil, f.abandon(ctx, g, errors.Wrap(err, "[Flow.ExchangeCode]"))
	}
	if g.hasScope(ScopeOfflineAccess) {
		if resp.RefreshToken, _, err = f.issueOpaque(ctx, token.TypeRefreshToken, g); err != nil {
			return nil, f.abandon(ctx, g, errors.Wrap(err, "[Flow.ExchangeCode]"))
		}
	}
	if g.hasScope(ScopeOpenID) {
		if resp.IDToken, err = f.issueIDToken(ctx, g); err != nil {
			return nil, f.abandon(ctx, g, errors.Wrap(err, "[Flow.ExchangeCode]"))
		}
	}
	return resp, nil
}

// abandon revokes what was issued for g before err stopped the exchange.
func (f *Flow) abandon(ctx context.Context, g grant, err error) error {
	if _, rerr := f.tokens.RevokeByGrantID(ctx, g.grantID); rerr != nil {
		f.logger.Err(rerr).Str("grant", g.grantID).Msg("failed to revoke partially issued grant")
	}
	return err
}
