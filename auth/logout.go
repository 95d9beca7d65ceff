package auth

import (
	"context"

	"github.com/pkg/errors"

	"github.com/JanssenProject/jans-sub021/authn"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/sessions"
)

// LogoutRequest holds the RP-initiated logout parameters. The session is identified by
// the session cookie, the sid of IDTokenHint, or both, in which case they must agree.
type LogoutRequest struct {
	SessionID             string
	IDTokenHint           string
	ClientID              string
	PostLogoutRedirectURI string
	State                 string
}

type LogoutResult struct {
	// Ended is false when no live session matched.
	Ended                 bool
	SessionID             string
	OutsideSID            string
	RevokedTokens         int
	ExternalLogoutURL     string
	PostLogoutRedirectURI string
	State                 string
}

// Logout ends a session: the logout authenticator runs, the session's tokens are
// revoked, non persistent consent is cleared and the session removed.
func (f *Flow) Logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	s, clientID, err := f.logoutSession(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Logout]")
	}

	result := &LogoutResult{State: req.State}
	if req.PostLogoutRedirectURI != "" && clientID != "" {
		if client, err := f.clients.Get(clientID); err == nil && client.HasRedirectURI(req.PostLogoutRedirectURI) {
			result.PostLogoutRedirectURI = req.PostLogoutRedirectURI
		} else {
			f.logger.Warn().Str("client", clientID).Str("uri", req.PostLogoutRedirectURI).Msg("post_logout_redirect_uri ignored")
		}
	}
	if s == nil {
		return result, nil
	}
	result.Ended = true
	result.SessionID = s.ID
	result.OutsideSID = s.OutsideSID

	if cfg := f.logoutAuthenticator(s); cfg != nil {
		params := s.Attributes.Clone()
		if !f.selector.ExecuteLogout(ctx, cfg, params) {
			f.logger.Warn().Str("session", s.ID).Str("authenticator", cfg.Name).Msg("authenticator logout failed")
		}
		result.ExternalLogoutURL = f.selector.ExecuteLogoutURL(cfg, params)
	}

	var errs []error
	if result.RevokedTokens, err = f.tokens.RevokeBySession(ctx, s.ID); err != nil {
		errs = append(errs, err)
	}
	if client, err := f.clients.Get(s.Attributes[sessions.AttrClientID]); err == nil && s.UserRef != "" {
		if err := f.consents.Clear(ctx, s.UserRef, client); err != nil {
			errs = append(errs, err)
		}
	}
	if err := f.sessions.Remove(ctx, s); err != nil {
		errs = append(errs, err)
	}
	f.logger.Info().Str("session", s.ID).Int("revoked", result.RevokedTokens).Msg("session logged out")
	return result, errors.Wrap(ierrors.Join(errs...), "[Flow.Logout]")
}

// logoutSession finds the session to end and the client the logout is for.
func (f *Flow) logoutSession(ctx context.Context, req LogoutRequest) (*sessions.Session, string, error) {
	clientID := req.ClientID
	var hinted *sessions.Session
	if req.IDTokenHint != "" {
		idToken, err := f.keys.IDTokenVerifier(f.issuer, req.ClientID).Verify(ctx, req.IDTokenHint)
		if err != nil {
			return nil, "", errors.Wrapf(ierrors.ErrInvalidRequest, "[Flow.logoutSession] id_token_hint: %v", err)
		}
		if clientID == "" && len(idToken.Audience) > 0 {
			clientID = idToken.Audience[0]
		}
		var claims struct {
			SID string `json:"sid"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, "", errors.Wrap(err, "[Flow.logoutSession] claims")
		}
		if claims.SID != "" {
			hinted, err = f.sessions.FindByOutsideSID(ctx, claims.SID)
			if err != nil && !errors.Is(err, ierrors.ErrNotFound) {
				return nil, "", errors.Wrap(err, "[Flow.logoutSession]")
			}
		}
	}

	if req.SessionID == "" {
		return hinted, clientID, nil
	}
	s, err := f.sessions.Resolve(ctx, req.SessionID)
	if errors.Is(err, ierrors.ErrNotFound) {
		return hinted, clientID, nil
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "[Flow.logoutSession]")
	}
	if hinted != nil && hinted.ID != s.ID {
		return nil, "", errors.Wrap(ierrors.ErrInvalidRequest, "[Flow.logoutSession] id_token_hint does not match the session")
	}
	if clientID == "" {
		clientID = s.Attributes[sessions.AttrClientID]
	}
	return s, clientID, nil
}

// logoutAuthenticator is the logout authenticator matching the session's acr, else
// the default one.
func (f *Flow) logoutAuthenticator(s *sessions.Session) *authn.Configuration {
	if acr := s.Acr(); acr != "" {
		if cfg, err := f.selector.ByName(authn.UsageLogout, acr); err == nil {
			return cfg
		}
	}
	cfg, err := f.selector.Default(authn.UsageLogout)
	if err != nil {
		return nil
	}
	return cfg
}
