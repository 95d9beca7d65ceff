// Package server builds the session and grant engine from configuration and runs its
// background jobs.
package server

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/JanssenProject/jans-sub021/auth"
	"github.com/JanssenProject/jans-sub021/authn"
	"github.com/JanssenProject/jans-sub021/authn/plugins"
	"github.com/JanssenProject/jans-sub021/cache"
	"github.com/JanssenProject/jans-sub021/cache/memcache"
	"github.com/JanssenProject/jans-sub021/clients"
	fakeclientrepo "github.com/JanssenProject/jans-sub021/clients/fakerepo"
	"github.com/JanssenProject/jans-sub021/consent"
	"github.com/JanssenProject/jans-sub021/internal/config"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/hashing"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/keys"
	"github.com/JanssenProject/jans-sub021/scheduler"
	"github.com/JanssenProject/jans-sub021/sessions"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/JanssenProject/jans-sub021/token"
	"github.com/JanssenProject/jans-sub021/users"
	fakeuserrepo "github.com/JanssenProject/jans-sub021/users/repofake"
)

// Server is the application context. Every component is built once in New and shared.
type Server struct {
	config config.Config

	Store     storage.Store
	Cache     cache.Cache
	Clients   clients.Repo
	Users     users.UserRepo
	Sessions  *sessions.Engine
	Tokens    *token.Store
	Consents  *consent.Ledger
	Selector  *authn.Selector
	Keys      *keys.Set
	Flow      *auth.Flow
	Scheduler *scheduler.Scheduler

	nowFunc       func() time.Time
	meterProvider metric.MeterProvider
	retryInterval time.Duration
	factories     authn.Factories
	logger        zerolog.Logger
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

// WithClientRepo sets the client directory. An in-memory directory is used otherwise.
func WithClientRepo(repo clients.Repo) Option {
	return func(s *Server) {
		s.Clients = repo
	}
}

// WithUserRepo sets the user directory. An in-memory directory is used otherwise.
func WithUserRepo(repo users.UserRepo) Option {
	return func(s *Server) {
		s.Users = repo
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

// WithMeterProvider records reconciler metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) {
		s.meterProvider = mp
	}
}

// WithAuthenticators registers plugin factories on top of the built-in ones.
func WithAuthenticators(factories authn.Factories) Option {
	return func(s *Server) {
		for k, f := range factories {
			s.factories[k] = f
		}
	}
}

// WithRetryInterval sets the first backoff interval when a backend is unavailable.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Server) {
		s.retryInterval = d
	}
}

// WithLogger sets the logger used by the server.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New opens the backends and wires the components. Backends already opened are
// closed again when a later step fails.
func New(ctx context.Context, c config.Config, options ...Option) (srv *Server, err error) {
	s := &Server{
		config:        c,
		nowFunc:       time.Now,
		meterProvider: otel.GetMeterProvider(),
		retryInterval: 500 * time.Millisecond,
		factories:     authn.Factories{},
		logger:        logging.Component("server"),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.Clients == nil {
		s.Clients = fakeclientrepo.NewFakeClientRepo()
	}
	if s.Users == nil {
		s.Users = fakeuserrepo.NewFakeUserRepo()
	}

	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.Store, err = s.openStore(ctx, c); err != nil {
		return nil, errors.Wrap(err, "[server.New]")
	}
	var cleaner *memcache.Cache
	if s.Cache, cleaner, err = s.openCache(ctx, c); err != nil {
		return nil, errors.Wrap(err, "[server.New]")
	}

	if err := s.buildComponents(ctx); err != nil {
		return nil, errors.Wrap(err, "[server.New]")
	}
	if err := s.buildScheduler(cleaner); err != nil {
		return nil, errors.Wrap(err, "[server.New]")
	}
	return s, nil
}

func (s *Server) buildComponents(ctx context.Context) error {
	c := s.config

	factories := plugins.Builtin(s.Users)
	for k, f := range s.factories {
		factories[k] = f
	}
	s.Selector = authn.NewSelector(factories,
		authn.WithUseHighestLevelIfAcrNotFound(c.GetUseHighestLevelIfAcrNotFound()))
	if err := s.Selector.ReloadFrom(ctx, c); err != nil {
		return errors.Wrap(err, "[Server.buildComponents] authenticators")
	}

	var err error
	s.Sessions, err = sessions.NewEngine(s.Store, sessions.Options{
		UnusedLifetime:                c.GetSessionUnusedLifetime(),
		UnauthenticatedUnusedLifetime: c.GetSessionUnauthenticatedUnusedLifetime(),
		ServerLifetime:                c.GetSessionServerLifetime(),
		PersistOnPromptNone:           c.GetSessionPersistOnPromptNone(),
		AllowedParameters:             c.GetSessionAllowedParameters(),
	}, sessions.WithNowFunc(s.nowFunc), sessions.WithAcrResolver(s.Selector.IsEnabled))
	if err != nil {
		return errors.Wrap(err, "[Server.buildComponents] sessions")
	}

	hasher, err := hashing.New(c.GetTokenHashKey())
	if err != nil {
		return errors.Wrap(err, "[Server.buildComponents] token hash key")
	}
	s.Tokens, err = token.NewStore(s.Store, s.Cache, hasher, token.Policy{
		PersistAccessToken:          c.GetPersistAccessToken(),
		PersistIDToken:              c.GetPersistIDToken(),
		PersistRefreshToken:         c.GetPersistRefreshToken(),
		CacheAllImplicitFlowObjects: c.GetCacheAllImplicitFlowObjects(),
		AuthorizationCodeLifetime:   c.GetAuthorizationCodeLifetime(),
		AccessTokenLifetime:         c.GetAccessTokenLifetime(),
		RefreshTokenLifetime:        c.GetRefreshTokenLifetime(),
		IDTokenLifetime:             c.GetIDTokenLifetime(),
	}, token.WithNowFunc(s.nowFunc), token.WithClientRepo(s.Clients))
	if err != nil {
		return errors.Wrap(err, "[Server.buildComponents] tokens")
	}

	s.Consents = consent.NewLedger(s.Store,
		consent.WithNowFunc(s.nowFunc),
		consent.WithCacheAllImplicitFlowObjects(c.GetCacheAllImplicitFlowObjects()))

	s.Keys, err = keys.NewSet(ctx, s.Store, c.GetKeyRotationInterval(), keys.WithNowFunc(s.nowFunc))
	if err != nil {
		return errors.Wrap(err, "[Server.buildComponents] keys")
	}

	s.Flow, err = auth.NewFlow(auth.Components{
		Sessions: s.Sessions,
		Selector: s.Selector,
		Tokens:   s.Tokens,
		Consents: s.Consents,
		Clients:  s.Clients,
		Keys:     s.Keys,
	}, c.GetIssuer(), auth.WithNowFunc(s.nowFunc))
	return errors.Wrap(err, "[Server.buildComponents] flow")
}

func (s *Server) buildScheduler(cleaner *memcache.Cache) error {
	var err error
	s.Scheduler, err = scheduler.New(scheduler.WithMeterProvider(s.meterProvider))
	if err != nil {
		return errors.Wrap(err, "[Server.buildScheduler]")
	}
	r := &scheduler.Reconciler{
		Sessions:      s.Sessions,
		Tokens:        s.Tokens,
		Clients:       s.Clients,
		Selector:      s.Selector,
		Definitions:   s.config,
		Keys:          s.Keys,
		Now:           s.nowFunc,
		CleanupEvery:  s.config.GetCleanupInterval(),
		ReloadEvery:   s.config.GetAuthenticatorReloadInterval(),
		KeyCheckEvery: s.config.GetKeyCheckInterval(),
	}
	if cleaner != nil {
		r.Cache = cleaner
	}
	return errors.Wrap(r.Register(s.Scheduler), "[Server.buildScheduler]")
}

func (s *Server) Config() config.Config {
	return s.config
}

// Run runs the background jobs until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info().
		Str("issuer", s.config.GetIssuer()).
		Str("storage", s.config.GetStorageBackend()).
		Str("cache", s.config.GetCacheBackend()).
		Int("authenticators", len(s.Selector.Configurations(authn.UsageInteractive))).
		Msg("session engine running")
	return errors.Wrap(s.Scheduler.Run(ctx), "[Server.Run]")
}

// Sweep runs one cleanup pass.
func (s *Server) Sweep(ctx context.Context) error {
	ran, err := s.Scheduler.RunNow(ctx, scheduler.JobSessionCleanup)
	if err != nil {
		return errors.Wrap(err, "[Server.Sweep]")
	}
	if !ran {
		return errors.Wrap(ierrors.ErrInvalidState, "[Server.Sweep] cleanup already running")
	}
	return nil
}

// RotateKeys replaces the signing key and returns the published key set.
func (s *Server) RotateKeys(ctx context.Context) (keys.JWKS, error) {
	if err := s.Keys.Rotate(ctx); err != nil {
		return keys.JWKS{}, errors.Wrap(err, "[Server.RotateKeys]")
	}
	return s.Keys.JWKS(), nil
}

// Close releases the backends.
func (s *Server) Close() error {
	var errs []error
	if s.Cache != nil {
		errs = append(errs, s.Cache.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Wrap(ierrors.Join(errs...), "[Server.Close]")
}
