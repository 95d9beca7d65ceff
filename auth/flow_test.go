package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-sub021/auth"
	"github.com/JanssenProject/jans-sub021/authn"
	"github.com/JanssenProject/jans-sub021/authn/plugins"
	"github.com/JanssenProject/jans-sub021/cache/memcache"
	"github.com/JanssenProject/jans-sub021/clients"
	fakeclientrepo "github.com/JanssenProject/jans-sub021/clients/fakerepo"
	"github.com/JanssenProject/jans-sub021/consent"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/hashing"
	"github.com/JanssenProject/jans-sub021/keys"
	"github.com/JanssenProject/jans-sub021/sessions"
	"github.com/JanssenProject/jans-sub021/storage/memstore"
	"github.com/JanssenProject/jans-sub021/token"
	"github.com/JanssenProject/jans-sub021/users"
	fakeuserrepo "github.com/JanssenProject/jans-sub021/users/repofake"
)

const (
	testIssuer        = "https://op.example.com"
	testClientID      = "test-client-1"
	testPublicClient  = "test-spa"
	testTrustedClient = "test-trusted"
	testRedirectURI   = "http://localhost:3000/callback"
	testLogoutURI     = "http://localhost:3000/logged-out"
	testUsername      = "jdoe"
	testPassword      = "Password123"
	testState         = "random-state-value"
	testNonce         = "random-nonce-value"
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testOTP           = "123456"
)

// otpPlugin identifies the user by name in step 1 and checks a fixed code in step 2.
type otpPlugin struct{}

func (otpPlugin) Init(authn.Attributes) error { return nil }
func (otpPlugin) IsValidAuthenticationMethod(authn.UsageType, authn.Attributes) (bool, error) {
	return true, nil
}
func (otpPlugin) GetAlternativeAuthenticationMethod(authn.UsageType, authn.Attributes) (string, error) {
	return "", nil
}
func (otpPlugin) GetCountAuthenticationSteps(authn.Attributes) (int, error) { return 2, nil }
func (otpPlugin) Authenticate(_ context.Context, _ authn.Attributes, req *authn.StepRequest) (bool, error) {
	switch req.Step {
	case 1:
		if req.Params["username"] == "" {
			return false, nil
		}
		req.UserRef = "otp-" + req.Params["username"]
		return true, nil
	case 2:
		return req.UserRef != "" && req.Params["otp"] == testOTP, nil
	}
	return false, nil
}
func (otpPlugin) PrepareForStep(context.Context, authn.Attributes, map[string]string, int) (bool, error) {
	return true, nil
}
func (otpPlugin) GetExtraParametersForStep(authn.Attributes, int) ([]string, error) {
	return []string{"otp"}, nil
}
func (otpPlugin) GetPageForStep(_ authn.Attributes, step int) (string, error) {
	if step == 2 {
		return "/otp", nil
	}
	return "/otp-user", nil
}
func (otpPlugin) Logout(context.Context, authn.Attributes, map[string]string) (bool, error) {
	return true, nil
}
func (otpPlugin) GetAPIVersion() int { return 3 }

type testFixture struct {
	now      time.Time
	store    *memstore.Store
	users    *fakeuserrepo.FakeUserRepo
	clients  *fakeclientrepo.FakeClientRepo
	sessions *sessions.Engine
	tokens   *token.Store
	consents *consent.Ledger
	keys     *keys.Set
	flow     *auth.Flow
	user     *users.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	f := &testFixture{
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		store:   memstore.New(),
		users:   fakeuserrepo.NewFakeUserRepo(),
		clients: fakeclientrepo.NewFakeClientRepo(),
	}
	nowFunc := func() time.Time { return f.now }

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	f.user = &users.User{Username: testUsername, Email: "john.doe@example.com", PasswordHash: hash, Verified: true}
	require.NoError(t, f.users.Upsert(f.user))

	scopes := []string{"openid", "profile", "email", "offline_access"}
	require.NoError(t, f.clients.Upsert(&clients.Client{
		ID: testClientID, Type: clients.ClientTypeConfidential, Scopes: scopes,
		RedirectURIs: []string{testRedirectURI, testLogoutURI},
	}))
	require.NoError(t, f.clients.Upsert(&clients.Client{
		ID: testPublicClient, Type: clients.ClientTypePublic, Scopes: scopes,
		RedirectURIs: []string{testRedirectURI},
	}))
	require.NoError(t, f.clients.Upsert(&clients.Client{
		ID: testTrustedClient, Type: clients.ClientTypeConfidential, Scopes: scopes, Trusted: true,
		RedirectURIs: []string{testRedirectURI},
	}))

	factories := plugins.Builtin(f.users)
	factories["otp"] = func() authn.Plugin { return otpPlugin{} }
	selector := authn.NewSelector(factories)
	require.NoError(t, selector.Reload(ctx, []authn.Definition{
		{Name: "basic", Type: plugins.TypeBasic, Version: 1, Level: 10, Priority: 1, UsageType: "both", Enabled: true},
		{Name: "otp", Type: "otp", Version: 1, Level: 20, Priority: 1, UsageType: "interactive", Enabled: true},
	}))

	f.sessions, err = sessions.NewEngine(f.store, sessions.Options{
		UnusedLifetime:                time.Hour,
		UnauthenticatedUnusedLifetime: 10 * time.Minute,
	}, sessions.WithNowFunc(nowFunc), sessions.WithAcrResolver(selector.IsEnabled))
	require.NoError(t, err)

	f.tokens, err = token.NewStore(f.store, memcache.New(memcache.WithNowFunc(nowFunc)), hashing.SHA256{}, token.Policy{
		PersistRefreshToken:       true,
		AuthorizationCodeLifetime: time.Minute,
		AccessTokenLifetime:       5 * time.Minute,
		RefreshTokenLifetime:      24 * time.Hour,
		IDTokenLifetime:           5 * time.Minute,
	}, token.WithNowFunc(nowFunc), token.WithClientRepo(f.clients))
	require.NoError(t, err)

	f.consents = consent.NewLedger(f.store, consent.WithNowFunc(nowFunc))

	f.keys, err = keys.NewSet(ctx, f.store, 24*time.Hour, keys.WithNowFunc(nowFunc))
	require.NoError(t, err)

	f.flow, err = auth.NewFlow(auth.Components{
		Sessions: f.sessions,
		Selector: selector,
		Tokens:   f.tokens,
		Consents: f.consents,
		Clients:  f.clients,
		Keys:     f.keys,
	}, testIssuer, auth.WithNowFunc(nowFunc))
	require.NoError(t, err)
	return f
}

func codeRequest(clientID string) *auth.AuthorizeRequest {
	return &auth.AuthorizeRequest{
		ClientID:            clientID,
		ResponseType:        auth.ResponseTypeCode,
		RedirectURI:         testRedirectURI,
		Scope:               "openid profile",
		State:               testState,
		Nonce:               testNonce,
		CodeChallenge:       testCodeChallenge,
		CodeChallengeMethod: token.PKCEMethodS256,
	}
}

func credentials(password string) map[string]string {
	return map[string]string{plugins.ParamUsername: testUsername, plugins.ParamPassword: password}
}

// login runs the code flow for req up to the authorization response.
func (f *testFixture) login(t *testing.T, req *auth.AuthorizeRequest) *auth.Result {
	t.Helper()
	ctx := context.Background()

	result, err := f.flow.Authorize(ctx, "", req)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeAuthenticate, result.Outcome)

	result, err = f.flow.AuthenticateStep(ctx, result.Session.ID, credentials(testPassword))
	require.NoError(t, err)
	if result.Outcome == auth.OutcomeConsent {
		result, err = f.flow.GrantConsent(ctx, result.Session.ID, result.Scopes)
		require.NoError(t, err)
	}
	require.Equal(t, auth.OutcomeRedirect, result.Outcome)
	return result
}

func TestNewFlowRequiresComponents(t *testing.T) {
	_, err := auth.NewFlow(auth.Components{}, testIssuer)
	require.Error(t, err)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	result, err := f.flow.Authorize(ctx, "", codeRequest(testClientID))
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeAuthenticate, result.Outcome)
	require.Equal(t, "basic", result.Step.Authenticator)
	require.Equal(t, 1, result.Step.Step)
	require.Equal(t, "/login", result.Step.Page)
	require.False(t, result.Session.IsAuthenticated())
	sessionID := result.Session.ID

	_, err = f.flow.AuthenticateStep(ctx, sessionID, credentials("wrong"))
	require.ErrorIs(t, err, ierrors.ErrAccessDenied)

	result, err = f.flow.AuthenticateStep(ctx, sessionID, credentials(testPassword))
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeConsent, result.Outcome)
	require.Equal(t, []string{"openid", "profile"}, result.Scopes)
	require.True(t, result.Session.IsAuthenticated())
	require.Equal(t, f.user.ID, result.Session.UserRef)
	require.Equal(t, "basic", result.Session.Acr())

	result, err = f.flow.GrantConsent(ctx, sessionID, []string{"openid", "profile"})
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeRedirect, result.Outcome)
	resp := result.Response
	require.NotEmpty(t, resp.Code)
	require.Empty(t, resp.AccessToken)
	require.Equal(t, testState, resp.State)
	require.Equal(t, auth.QueryResponseMode, resp.ResponseMode)
	require.True(t, sessions.VerifySessionState(resp.SessionState, testClientID, testRedirectURI,
		result.Session.Attributes[sessions.AttrOPBrowserState]))

	tokens, err := f.flow.ExchangeCode(ctx, auth.ExchangeRequest{
		ClientID:     testClientID,
		Code:         resp.Code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, 300, tokens.ExpiresIn)
	require.Empty(t, tokens.RefreshToken, "no offline_access requested")
	require.Equal(t, "openid profile", tokens.Scope)

	idToken, err := f.keys.IDTokenVerifier(testIssuer, testClientID).Verify(ctx, tokens.IDToken)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, idToken.Subject)
	require.Equal(t, testNonce, idToken.Nonce)
	var claims struct {
		SID string `json:"sid"`
		Acr string `json:"acr"`
	}
	require.NoError(t, idToken.Claims(&claims))
	require.Equal(t, result.Session.OutsideSID, claims.SID)
	require.Equal(t, "basic", claims.Acr)

	access, err := f.tokens.FindByCode(ctx, tokens.AccessToken, false)
	require.NoError(t, err)
	require.Equal(t, sessionID, access.SessionRef)
}

func TestCodeReplayRevokesGrant(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	req := codeRequest(testClientID)
	req.Scope = "openid offline_access"
	resp := f.login(t, req).Response

	exchange := auth.ExchangeRequest{ClientID: testClientID, Code: resp.Code, RedirectURI: testRedirectURI, CodeVerifier: testCodeVerifier}
	tokens, err := f.flow.ExchangeCode(ctx, exchange)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.RefreshToken)

	_, err = f.flow.ExchangeCode(ctx, exchange)
	require.ErrorIs(t, err, ierrors.ErrInvalidGrant)

	for _, raw := range []string{tokens.AccessToken, tokens.RefreshToken, tokens.IDToken} {
		_, err := f.tokens.FindByCode(ctx, raw, false)
		require.ErrorIs(t, err, ierrors.ErrNotFound)
	}
}

func TestExchangeRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(r *auth.ExchangeRequest)
	}{
		{name: "wrong verifier", mutate: func(r *auth.ExchangeRequest) { r.CodeVerifier = "not-the-verifier-not-the-verifier-not-the-ver" }},
		{name: "missing verifier", mutate: func(r *auth.ExchangeRequest) { r.CodeVerifier = "" }},
		{name: "other client", mutate: func(r *auth.ExchangeRequest) { r.ClientID = testTrustedClient }},
		{name: "redirect mismatch", mutate: func(r *auth.ExchangeRequest) { r.RedirectURI = testLogoutURI }},
		{name: "unknown code", mutate: func(r *auth.ExchangeRequest) { r.Code = "unknown" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			resp := f.login(t, codeRequest(testClientID)).Response

			req := auth.ExchangeRequest{ClientID: testClientID, Code: resp.Code, RedirectURI: testRedirectURI, CodeVerifier: testCodeVerifier}
			tt.mutate(&req)
			_, err := f.flow.ExchangeCode(ctx, req)
			require.ErrorIs(t, err, ierrors.ErrInvalidGrant)
		})
	}

	f := setupTestFixture(t)
	_, err := f.flow.ExchangeCode(ctx, auth.ExchangeRequest{ClientID: "ghost", Code: "x"})
	require.ErrorIs(t, err, auth.ErrInvalidClient)
}

func TestAuthenticatedSessionIsReused(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	first := f.login(t, codeRequest(testClientID))

	req := codeRequest(testClientID)
	req.State = "second-state"
	req.Prompt = auth.PromptNone
	result, err := f.flow.Authorize(ctx, first.Session.ID, req)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeRedirect, result.Outcome)
	require.Equal(t, first.Session.ID, result.Session.ID)
	require.Equal(t, "second-state", result.Response.State)
	require.Equal(t, first.Response.SessionState, result.Response.SessionState)
	require.NotEqual(t, first.Response.Code, result.Response.Code)

	req.Scope = "openid email"
	_, err = f.flow.Authorize(ctx, first.Session.ID, req)
	require.ErrorIs(t, err, ierrors.ErrConsentRequired)

	req.Prompt = auth.PromptLogin
	result, err = f.flow.Authorize(ctx, first.Session.ID, req)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeAuthenticate, result.Outcome)
	require.NotEqual(t, first.Session.ID, result.Session.ID)
}

func TestPromptNoneWithoutSession(t *testing.T) {
	f := setupTestFixture(t)
	req := codeRequest(testClientID)
	req.Prompt = auth.PromptNone

	_, err := f.flow.Authorize(context.Background(), "", req)
	require.ErrorIs(t, err, auth.ErrLoginRequired)
	require.ErrorIs(t, err, ierrors.ErrAccessDenied)
}

func TestAcrChangeStartsNewSession(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	first := f.login(t, codeRequest(testClientID))

	req := codeRequest(testClientID)
	req.AcrValues = "otp"
	result, err := f.flow.Authorize(ctx, first.Session.ID, req)
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeAuthenticate, result.Outcome)
	require.Equal(t, "otp", result.Step.Authenticator)
	require.NotEqual(t, first.Session.ID, result.Session.ID)

	_, err = f.sessions.Resolve(ctx, first.Session.ID)
	require.ErrorIs(t, err, ierrors.ErrNotFound)
}

func TestUnknownAcrIsDenied(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	for _, acr := range []string{"urn:acr:unknown", "50"} {
		req := codeRequest(testClientID)
		req.AcrValues = acr
		result, err := f.flow.Authorize(ctx, "", req)
		require.ErrorIs(t, err, ierrors.ErrAccessDenied, acr)
		require.Nil(t, result)
	}
}

func TestMultiStepAuthentication(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	req := codeRequest(testClientID)
	req.AcrValues = "otp"
	result, err := f.flow.Authorize(ctx, "", req)
	require.NoError(t, err)
	require.Equal(t, "/otp-user", result.Step.Page)
	sessionID := result.Session.ID

	result, err = f.flow.AuthenticateStep(ctx, sessionID, map[string]string{"username": "alice"})
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeAuthenticate, result.Outcome)
	require.Equal(t, 2, result.Step.Step)
	require.Equal(t, "/otp", result.Step.Page)
	require.Equal(t, []string{"otp"}, result.Step.ExtraParameters)
	require.True(t, result.Session.IsStepPassed(1))

	_, err = f.flow.AuthenticateStep(ctx, sessionID, map[string]string{"otp": "000000"})
	require.ErrorIs(t, err, ierrors.ErrAccessDenied)

	result, err = f.flow.AuthenticateStep(ctx, sessionID, map[string]string{"otp": testOTP})
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeConsent, result.Outcome)
	require.Equal(t, "otp-alice", result.Session.UserRef)
	require.Equal(t, "otp", result.Session.Acr())

	_, err = f.flow.AuthenticateStep(ctx, sessionID, map[string]string{"otp": testOTP})
	require.ErrorIs(t, err, ierrors.ErrInvalidState)
}

func TestConsentNarrowsScopes(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	req := codeRequest(testClientID)
	req.Scope = "openid profile email"
	result, err := f.flow.Authorize(ctx, "", req)
	require.NoError(t, err)
	result, err = f.flow.AuthenticateStep(ctx, result.Session.ID, credentials(testPassword))
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeConsent, result.Outcome)

	_, err = f.flow.GrantConsent(ctx, result.Session.ID, []string{"address"})
	require.ErrorIs(t, err, ierrors.ErrAccessDenied)

	result, err = f.flow.GrantConsent(ctx, result.Session.ID, []string{"openid", "email"})
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeRedirect, result.Outcome)

	tokens, err := f.flow.ExchangeCode(ctx, auth.ExchangeRequest{
		ClientID: testClientID, Code: result.Response.Code, RedirectURI: testRedirectURI, CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)
	require.Equal(t, "openid email", tokens.Scope)

	ok, err := f.consents.HasConsented(ctx, f.user.ID, &clients.Client{ID: testClientID}, []string{"openid", "email"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestImplicitFlowForTrustedClient(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	req := &auth.AuthorizeRequest{
		ClientID:     testTrustedClient,
		ResponseType: "id_token token",
		RedirectURI:  testRedirectURI,
		Scope:        "openid",
		State:        testState,
		Nonce:        testNonce,
	}
	result, err := f.flow.Authorize(ctx, "", req)
	require.NoError(t, err)
	result, err = f.flow.AuthenticateStep(ctx, result.Session.ID, credentials(testPassword))
	require.NoError(t, err)
	require.Equal(t, auth.OutcomeRedirect, result.Outcome, "trusted clients skip consent")

	resp := result.Response
	require.Equal(t, auth.FragmentResponseMode, resp.ResponseMode)
	require.Empty(t, resp.Code)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.IDToken)

	access, err := f.tokens.FindByCode(ctx, resp.AccessToken, true)
	require.NoError(t, err)
	require.True(t, access.IsImplicitFlow)
	require.Equal(t, token.TierCache, access.Tier)
}

func TestAuthorizeValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *auth.AuthorizeRequest)
		wantErr error
	}{
		{name: "unknown client", mutate: func(r *auth.AuthorizeRequest) { r.ClientID = "ghost" }, wantErr: auth.ErrInvalidClient},
		{name: "redirect not registered", mutate: func(r *auth.AuthorizeRequest) { r.RedirectURI = "https://evil.example.com/cb" }, wantErr: auth.ErrRedirectURIMismatch},
		{name: "hybrid response type", mutate: func(r *auth.AuthorizeRequest) { r.ResponseType = "code token" }, wantErr: auth.ErrUnsupportedResponseType},
		{name: "empty response type", mutate: func(r *auth.AuthorizeRequest) { r.ResponseType = "" }, wantErr: auth.ErrUnsupportedResponseType},
		{name: "public client without PKCE", mutate: func(r *auth.AuthorizeRequest) {
			r.ClientID = testPublicClient
			r.CodeChallenge, r.CodeChallengeMethod = "", ""
		}, wantErr: auth.ErrPKCERequired},
		{name: "short challenge", mutate: func(r *auth.AuthorizeRequest) { r.CodeChallenge = "short" }, wantErr: ierrors.ErrInvalidRequest},
		{name: "unknown challenge method", mutate: func(r *auth.AuthorizeRequest) { r.CodeChallengeMethod = "S512" }, wantErr: ierrors.ErrInvalidRequest},
		{name: "scope not allowed", mutate: func(r *auth.AuthorizeRequest) { r.Scope = "openid admin" }, wantErr: ierrors.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			req := codeRequest(testClientID)
			tt.mutate(req)
			_, err := f.flow.Authorize(context.Background(), "", req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLogoutWithIDTokenHint(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	result := f.login(t, codeRequest(testClientID))
	s := result.Session

	tokens, err := f.flow.ExchangeCode(ctx, auth.ExchangeRequest{
		ClientID: testClientID, Code: result.Response.Code, RedirectURI: testRedirectURI, CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Minute)
	out, err := f.flow.Logout(ctx, auth.LogoutRequest{
		IDTokenHint:           tokens.IDToken,
		PostLogoutRedirectURI: testLogoutURI,
		State:                 "bye",
	})
	require.NoError(t, err)
	require.True(t, out.Ended)
	require.Equal(t, s.ID, out.SessionID)
	require.Equal(t, s.OutsideSID, out.OutsideSID)
	require.Equal(t, testLogoutURI, out.PostLogoutRedirectURI)
	require.Equal(t, "bye", out.State)
	require.GreaterOrEqual(t, out.RevokedTokens, 2)

	_, err = f.sessions.Resolve(ctx, s.ID)
	require.ErrorIs(t, err, ierrors.ErrNotFound)
	_, err = f.tokens.FindByCode(ctx, tokens.AccessToken, false)
	require.ErrorIs(t, err, ierrors.ErrNotFound)

	client, err := f.clients.Get(testClientID)
	require.NoError(t, err)
	ok, err := f.consents.HasConsented(ctx, f.user.ID, client, []string{"openid"})
	require.NoError(t, err)
	require.False(t, ok, "consent of clients without persistent authorizations is cleared")

	out, err = f.flow.Logout(ctx, auth.LogoutRequest{IDTokenHint: tokens.IDToken})
	require.NoError(t, err)
	require.False(t, out.Ended)
}

func TestLogoutRejectsMismatchedHint(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	first := f.login(t, codeRequest(testClientID))
	tokens, err := f.flow.ExchangeCode(ctx, auth.ExchangeRequest{
		ClientID: testClientID, Code: first.Response.Code, RedirectURI: testRedirectURI, CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)
	second := f.login(t, codeRequest(testClientID))

	_, err = f.flow.Logout(ctx, auth.LogoutRequest{SessionID: second.Session.ID, IDTokenHint: tokens.IDToken})
	require.ErrorIs(t, err, ierrors.ErrInvalidRequest)

	_, err = f.flow.Logout(ctx, auth.LogoutRequest{IDTokenHint: "not-a-jwt"})
	require.ErrorIs(t, err, ierrors.ErrInvalidRequest)

	out, err := f.flow.Logout(ctx, auth.LogoutRequest{SessionID: second.Session.ID, PostLogoutRedirectURI: "https://evil.example.com"})
	require.NoError(t, err)
	require.True(t, out.Ended)
	require.Empty(t, out.PostLogoutRedirectURI)
}
