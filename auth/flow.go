// Package auth drives authorization requests through the session engine, the
// authenticator selector, the consent ledger and the token store.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JanssenProject/jans-sub021/authn"
	"github.com/JanssenProject/jans-sub021/clients"
	"github.com/JanssenProject/jans-sub021/consent"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/internal/utils"
	"github.com/JanssenProject/jans-sub021/keys"
	"github.com/JanssenProject/jans-sub021/sessions"
	"github.com/JanssenProject/jans-sub021/token"
)

// Session attributes private to the flow.
const (
	attrAuthenticator = "auth_authenticator" // authenticator pinned for the remaining steps
	attrAuthUser      = "auth_user"          // user identified by the steps passed so far
	attrConsented     = "auth_consented"     // consent given during this request
)

const tokenTypeBearer = "Bearer"

// Components holds the collaborators of a Flow.
type Components struct {
	Sessions *sessions.Engine
	Selector *authn.Selector
	Tokens   *token.Store
	Consents *consent.Ledger
	Clients  clients.Repo
	Keys     *keys.Set
}

// Flow provides the authorization, token and logout operations.
type Flow struct {
	sessions *sessions.Engine
	selector *authn.Selector
	tokens   *token.Store
	consents *consent.Ledger
	clients  clients.Repo
	keys     *keys.Set
	issuer   string
	nowFunc  func() time.Time
	logger   zerolog.Logger
}

// FlowOption defines a function type to modify the Flow instance.
type FlowOption func(*Flow)

// WithNowFunc sets the clock used for token claims (primarily for testing)
func WithNowFunc(now func() time.Time) FlowOption {
	return func(f *Flow) {
		f.nowFunc = now
	}
}

// WithLogger sets the logger used by the flow.
func WithLogger(logger zerolog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

func NewFlow(c Components, issuer string, options ...FlowOption) (*Flow, error) {
	if c.Sessions == nil {
		return nil, errors.New("[NewFlow] session engine is required")
	}
	if c.Selector == nil {
		return nil, errors.New("[NewFlow] authenticator selector is required")
	}
	if c.Tokens == nil {
		return nil, errors.New("[NewFlow] token store is required")
	}
	if c.Consents == nil {
		return nil, errors.New("[NewFlow] consent ledger is required")
	}
	if c.Clients == nil {
		return nil, errors.New("[NewFlow] clients repo is required")
	}
	if c.Keys == nil {
		return nil, errors.New("[NewFlow] key set is required")
	}

	f := &Flow{
		sessions: c.Sessions,
		selector: c.Selector,
		tokens:   c.Tokens,
		consents: c.Consents,
		clients:  c.Clients,
		keys:     c.Keys,
		issuer:   issuer,
		nowFunc:  time.Now,
		logger:   logging.Component("auth"),
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// Outcome tells the caller what to do with a Result.
type Outcome string

const (
	OutcomeAuthenticate Outcome = "authenticate" // render Step
	OutcomeConsent      Outcome = "consent"      // ask for Scopes
	OutcomeRedirect     Outcome = "redirect"     // send Response to the client
)

// StepPrompt is the authentication step the user agent has to go through next.
type StepPrompt struct {
	Authenticator   string
	Step            int
	Page            string
	ExtraParameters []string
}

// AuthorizationResponse is returned to the client's redirect uri.
type AuthorizationResponse struct {
	RedirectURI  string
	ResponseMode ResponseMode
	Code         string
	AccessToken  string
	TokenType    string
	ExpiresIn    int
	IDToken      string
	Scope        string
	State        string
	SessionState string
}

type Result struct {
	Outcome  Outcome
	Session  *sessions.Session
	Step     *StepPrompt
	Scopes   []string
	Response *AuthorizationResponse
}

// Authorize handles an authorization request. sessionID is the session cookie value,
// empty when the user agent has none.
func (f *Flow) Authorize(ctx context.Context, sessionID string, req *AuthorizeRequest) (*Result, error) {
	client, err := f.clients.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidClient, "[Flow.Authorize] %s", req.ClientID)
	}
	if err := req.Validate(client); err != nil {
		return nil, errors.Wrap(err, "[Flow.Authorize]")
	}

	s, err := f.sessionFor(ctx, sessionID, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.Authorize]")
	}
	return f.advance(ctx, s, client)
}

// sessionFor resolves the session a request continues. Unauthenticated sessions, an
// explicit prompt=login and an acr change all start over with a new session.
func (f *Flow) sessionFor(ctx context.Context, sessionID string, req *AuthorizeRequest) (*sessions.Session, error) {
	params := req.Params()
	if sessionID != "" {
		s, err := f.sessions.Resolve(ctx, sessionID)
		switch {
		case errors.Is(err, ierrors.ErrNotFound):
		case err != nil:
			return nil, errors.Wrap(err, "[Flow.sessionFor]")
		case !s.IsAuthenticated() || req.HasPrompt(PromptLogin):
			f.discard(ctx, s)
		default:
			reconciled, err := f.sessions.ReconcileWithRequest(ctx, s, params)
			if err == nil {
				delete(reconciled.Attributes, attrConsented)
				return reconciled, nil
			}
			var acrErr *ierrors.AcrChangedError
			if !errors.As(err, &acrErr) {
				return nil, errors.Wrap(err, "[Flow.sessionFor] reconcile")
			}
			f.logger.Info().Str("session", s.ID).Str("from", acrErr.SessionAcr).Str("to", acrErr.RequestedAcr).
				Bool("method_enabled", acrErr.MethodEnabled).Msg("acr changed, starting a new session")
			f.discard(ctx, s)
		}
	}
	s, err := f.sessions.Create(ctx, "", req.Prompts(), params)
	return s, errors.Wrap(err, "[Flow.sessionFor] create")
}

func (f *Flow) discard(ctx context.Context, s *sessions.Session) {
	if err := f.sessions.Remove(ctx, s); err != nil {
		f.logger.Err(err).Str("session", s.ID).Msg("failed to remove replaced session")
	}
}

// advance moves s to its next outcome: an authentication step, a consent prompt or
// the authorization response.
func (f *Flow) advance(ctx context.Context, s *sessions.Session, client *clients.Client) (*Result, error) {
	req := requestFromSession(s)
	if !s.IsAuthenticated() {
		if req.HasPrompt(PromptNone) {
			return nil, errors.Wrap(ErrLoginRequired, "[Flow.advance]")
		}
		return f.promptStep(ctx, s)
	}

	consented := s.Attributes[attrConsented] == "true"
	if !consented && !(req.HasPrompt(PromptConsent) && !client.Trusted) {
		var err error
		consented, err = f.consents.HasConsented(ctx, s.UserRef, client, req.Scopes())
		if err != nil {
			return nil, errors.Wrap(err, "[Flow.advance]")
		}
	}
	if !consented {
		if req.HasPrompt(PromptNone) {
			return nil, errors.Wrap(ierrors.ErrConsentRequired, "[Flow.advance]")
		}
		return &Result{Outcome: OutcomeConsent, Session: s, Scopes: req.Scopes()}, nil
	}

	resp, err := f.respond(ctx, s, client, req)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.advance]")
	}
	return &Result{Outcome: OutcomeRedirect, Session: s, Response: resp}, nil
}

// authenticatorFor selects the authenticator of step and pins it on the session.
func (f *Flow) authenticatorFor(ctx context.Context, s *sessions.Session, step int) (*authn.Configuration, error) {
	authMode := s.Attributes[sessions.AttrAuthMode]
	if step > 1 {
		authMode = s.Attributes[attrAuthenticator]
	}
	cfg, err := f.selector.SelectForStep(authn.UsageInteractive, step, s.Attributes[sessions.AttrAcrValues], authMode)
	if err == nil {
		cfg, err = f.selector.ReconcileForWorkflow(ctx, authn.UsageInteractive, cfg)
	}
	if errors.Is(err, ierrors.ErrNotFound) {
		// No authenticator satisfies the requested acr.
		return nil, errors.Wrapf(ierrors.ErrAccessDenied, "[Flow.authenticatorFor] %v", err)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.authenticatorFor]")
	}
	s.Attributes[attrAuthenticator] = cfg.Name
	return cfg, nil
}

func (f *Flow) promptStep(ctx context.Context, s *sessions.Session) (*Result, error) {
	step := s.AuthStep()
	cfg, err := f.authenticatorFor(ctx, s, step)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.promptStep]")
	}
	if !f.selector.ExecutePrepareForStep(ctx, cfg, s.Attributes.Clone(), step) {
		return nil, errors.Wrapf(ierrors.ErrAccessDenied, "[Flow.promptStep] %s refused step %d", cfg.Name, step)
	}
	if err := f.sessions.Save(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Flow.promptStep]")
	}
	return &Result{
		Outcome: OutcomeAuthenticate,
		Session: s,
		Step: &StepPrompt{
			Authenticator:   cfg.Name,
			Step:            step,
			Page:            f.selector.ExecutePageForStep(cfg, step),
			ExtraParameters: f.selector.ExecuteExtraParameters(cfg, step),
		},
	}, nil
}

// AuthenticateStep runs the current authentication step of the session with the
// submitted params. Passing the last step authenticates the session.
func (f *Flow) AuthenticateStep(ctx context.Context, sessionID string, params map[string]string) (*Result, error) {
	s, err := f.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.AuthenticateStep]")
	}
	if s.IsAuthenticated() {
		return nil, errors.Wrapf(ierrors.ErrInvalidState, "[Flow.AuthenticateStep] session %s already authenticated", s.ID)
	}
	step := s.AuthStep()
	for i := 1; i < step; i++ {
		if !s.IsStepPassed(i) {
			return nil, errors.Wrapf(ierrors.ErrInvalidState, "[Flow.AuthenticateStep] step %d not passed", i)
		}
	}

	cfg, err := f.authenticatorFor(ctx, s, step)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.AuthenticateStep]")
	}
	stepReq := &authn.StepRequest{Step: step, Params: params, UserRef: s.Attributes[attrAuthUser]}
	if !f.selector.ExecuteAuthenticate(ctx, cfg, stepReq) || stepReq.UserRef == "" {
		f.logger.Info().Str("session", s.ID).Str("authenticator", cfg.Name).Int("step", step).Msg("authentication step failed")
		return nil, errors.Wrapf(ierrors.ErrAccessDenied, "[Flow.AuthenticateStep] %s step %d", cfg.Name, step)
	}
	s.Attributes[attrAuthUser] = stepReq.UserRef
	if err := f.sessions.MarkStepPassed(ctx, s, step); err != nil {
		return nil, errors.Wrap(err, "[Flow.AuthenticateStep]")
	}

	count := f.selector.ExecuteStepCount(cfg)
	if count < 1 {
		return nil, errors.Wrapf(ierrors.ErrPluginFailure, "[Flow.AuthenticateStep] %s reports no steps", cfg.Name)
	}
	next := f.selector.ExecuteNextStep(cfg, params, step)
	if next > 0 && next != step+1 {
		if err := f.sessions.ResetToStep(ctx, s, next); err != nil {
			return nil, errors.Wrap(err, "[Flow.AuthenticateStep]")
		}
	}
	if next > 0 || step < count {
		return f.promptStep(ctx, s)
	}

	delete(s.Attributes, attrAuthUser)
	if err := f.sessions.Authenticate(ctx, s, stepReq.UserRef, cfg.Name); err != nil {
		return nil, errors.Wrap(err, "[Flow.AuthenticateStep]")
	}
	f.logger.Info().Str("session", s.ID).Str("user", s.UserRef).Str("acr", cfg.Name).Msg("session authenticated")

	client, err := f.clients.Get(s.Attributes[sessions.AttrClientID])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidClient, "[Flow.AuthenticateStep]")
	}
	return f.advance(ctx, s, client)
}

// GrantConsent records the scopes the user approved. The request continues with the
// approved subset of the requested scopes.
func (f *Flow) GrantConsent(ctx context.Context, sessionID string, approved []string) (*Result, error) {
	s, err := f.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.GrantConsent]")
	}
	if !s.IsAuthenticated() {
		return nil, errors.Wrapf(ierrors.ErrInvalidState, "[Flow.GrantConsent] session %s not authenticated", s.ID)
	}
	req := requestFromSession(s)
	client, err := f.clients.Get(req.ClientID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidClient, "[Flow.GrantConsent]")
	}

	approvedSet := utils.NewStringSet(approved...)
	var scopes []string
	for _, scope := range req.Scopes() {
		if approvedSet.Contains(scope) {
			scopes = append(scopes, scope)
		}
	}
	if len(scopes) == 0 {
		return nil, errors.Wrap(ierrors.ErrAccessDenied, "[Flow.GrantConsent] consent denied")
	}

	if err := f.consents.Grant(ctx, s.UserRef, client, scopes, req.IsImplicit()); err != nil {
		return nil, errors.Wrap(err, "[Flow.GrantConsent]")
	}
	s.Attributes[sessions.AttrScope] = strings.Join(scopes, " ")
	s.Attributes[attrConsented] = "true"
	if err := f.sessions.Save(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Flow.GrantConsent]")
	}
	return f.advance(ctx, s, client)
}

// grant is what the tokens of one grant share.
type grant struct {
	session  *sessions.Session
	clientID string
	grantID  string
	scope    string
	nonce    string
	implicit bool
}

func (g grant) hasScope(scope string) bool {
	return utils.NewStringSet(strings.Fields(g.scope)...).Contains(scope)
}

func (f *Flow) respond(ctx context.Context, s *sessions.Session, client *clients.Client, req *AuthorizeRequest) (*AuthorizationResponse, error) {
	sessionState, err := f.sessions.SessionStateFor(s, req.ClientID, req.RedirectURI)
	if err != nil {
		return nil, errors.Wrap(err, "[Flow.respond]")
	}
	s.SessionState = sessionState
	delete(s.Attributes, attrConsented)
	if err := f.sessions.Save(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Flow.respond]")
	}

	resp := &AuthorizationResponse{
		RedirectURI:  req.RedirectURI,
		ResponseMode: req.DefaultResponseMode(),
		State:        req.State,
		SessionState: sessionState,
	}
	g := grant{
		session:  s,
		clientID: client.ID,
		grantID:  uuid.NewString(),
		scope:    req.Scope,
		nonce:    req.Nonce,
		implicit: req.IsImplicit(),
	}

	types := req.responseTypes()
	if types.Contains(ResponseTypeCode) {
		raw, err := token.NewCode()
		if err != nil {
			return nil, errors.Wrap(err, "[Flow.respond] code")
		}
		if _, err := f.tokens.Issue(ctx, token.IssueRequest{
			Type:                token.TypeAuthorizationCode,
			ClientID:            client.ID,
			GrantID:             g.grantID,
			SessionRef:          s.ID,
			UserRef:             s.UserRef,
			Scope:               g.scope,
			Nonce:               g.nonce,
			RawCode:             raw,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
		}); err != nil {
			return nil, errors.Wrap(err, "[Flow.respond] code")
		}
		resp.Code = raw
		return resp, nil
	}

	if types.Contains(ResponseTypeToken) {
		raw, expiresIn, err := f.issueOpaque(ctx, token.TypeAccessToken, g)
		if err != nil {
			return nil, errors.Wrap(err, "[Flow.respond]")
		}
		resp.AccessToken, resp.TokenType, resp.ExpiresIn, resp.Scope = raw, tokenTypeBearer, expiresIn, g.scope
	}
	if types.Contains(ResponseTypeIDToken) {
		raw, err := f.issueIDToken(ctx, g)
		if err != nil {
			return nil, errors.Wrap(err, "[Flow.respond]")
		}
		resp.IDToken = raw
	}
	return resp, nil
}

// issueOpaque issues a random access or refresh token and returns it with its
// lifetime in seconds.
func (f *Flow) issueOpaque(ctx context.Context, typ token.Type, g grant) (string, int, error) {
	raw, err := token.NewCode()
	if err != nil {
		return "", 0, errors.Wrapf(err, "[Flow.issueOpaque] %s", typ)
	}
	r, err := f.tokens.Issue(ctx, token.IssueRequest{
		Type:           typ,
		ClientID:       g.clientID,
		GrantID:        g.grantID,
		SessionRef:     g.session.ID,
		UserRef:        g.session.UserRef,
		Scope:          g.scope,
		IsImplicitFlow: g.implicit,
		RawCode:        raw,
	})
	if err != nil {
		return "", 0, errors.Wrapf(err, "[Flow.issueOpaque] %s", typ)
	}
	expiresIn := 0
	if !r.ExpiresAt.IsZero() {
		expiresIn = int(r.ExpiresAt.Sub(r.CreatedAt) / time.Second)
	}
	return raw, expiresIn, nil
}

func (f *Flow) issueIDToken(ctx context.Context, g grant) (string, error) {
	s := g.session
	now := f.nowFunc()
	claims := jwt.MapClaims{
		"iss":       f.issuer,
		"sub":       s.UserRef,
		"aud":       g.clientID,
		"iat":       now.Unix(),
		"exp":       now.Add(f.tokens.Lifetime(token.TypeIDToken, g.clientID)).Unix(),
		"auth_time": s.AuthenticationTime.Unix(),
		"sid":       s.OutsideSID,
	}
	if g.nonce != "" {
		claims["nonce"] = g.nonce
	}
	if acr := s.Acr(); acr != "" {
		claims["acr"] = acr
	}

	raw, err := f.keys.Signer().Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Flow.issueIDToken] sign")
	}
	if _, err := f.tokens.Issue(ctx, token.IssueRequest{
		Type:           token.TypeIDToken,
		ClientID:       g.clientID,
		GrantID:        g.grantID,
		SessionRef:     s.ID,
		UserRef:        s.UserRef,
		Scope:          g.scope,
		Nonce:          g.nonce,
		IsImplicitFlow: g.implicit,
		RawCode:        raw,
	}); err != nil {
		return "", errors.Wrap(err, "[Flow.issueIDToken]")
	}
	return raw, nil
}
