package sessions

import (
	"context"
	"strconv"
	"strings"
	"time"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/internal/utils"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Never disables a lifetime check.
const Never time.Duration = -1

const (
	fieldState      = "state"
	fieldUserRef    = "userRef"
	fieldOutsideSID = "sid"
	timeLastUsedAt  = "lastUsedAt"
	timeAuthnTime   = "authenticationTime"
)

// Options is the session configuration snapshot.
type Options struct {
	UnusedLifetime                time.Duration // Since last use. Never disables the check.
	UnauthenticatedUnusedLifetime time.Duration // Additional bound for unauthenticated sessions.
	ServerLifetime                time.Duration // Absolute lifetime from authentication. 0 disables it.
	PersistOnPromptNone           bool
	AllowedParameters             []string // Custom parameters kept on top of DefaultAllowedParameters
}

// Engine owns the session lifecycle: creation, the authentication state machine,
// attribute reconciliation across requests, validity checks and cleanup.
type Engine struct {
	store      storage.Store
	opts       Options
	allowed    utils.StringSet
	acrEnabled func(acr string) bool
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

// EngineOption defines a function type to modify the Engine instance.
type EngineOption func(*Engine)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.nowFunc = now
	}
}

// WithLogger sets the logger used by the engine.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAcrResolver reports whether an acr maps to an installed authenticator. It feeds
// AcrChangedError.MethodEnabled.
func WithAcrResolver(enabled func(acr string) bool) EngineOption {
	return func(e *Engine) {
		e.acrEnabled = enabled
	}
}

// NewEngine creates a session engine writing persisted sessions to store.
func NewEngine(store storage.Store, opts Options, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("[NewEngine] store is required")
	}

	e := &Engine{
		store:      store,
		opts:       opts,
		allowed:    utils.NewStringSet(append(append([]string{}, DefaultAllowedParameters...), opts.AllowedParameters...)...),
		acrEnabled: func(string) bool { return false },
		nowFunc:    time.Now,
		logger:     logging.Component("sessions"),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Resolve returns a valid session. Missing, stale and absolutely expired sessions are
// all reported as ErrNotFound. A successful resolve touches the session.
func (e *Engine) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.Wrap(ierrors.ErrNotFound, "[Engine.Resolve] empty session id")
	}
	entry, err := e.store.FindOne(ctx, storage.KindSession, "", id)
	if err != nil {
		return nil, errors.Wrapf(err, "[Engine.Resolve] session %s", id)
	}
	s, err := decode(entry)
	if err != nil {
		return nil, errors.Wrapf(err, "[Engine.Resolve] decoding session %s", id)
	}

	if !e.IsValid(s) || e.IsExpired(s) {
		e.logger.Debug().Str("session", id).Str("state", string(s.State)).Msg("stale session treated as not found")
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Engine.Resolve] session %s expired", id)
	}

	if err := e.Touch(ctx, s); err != nil {
		return nil, errors.Wrap(err, "[Engine.Resolve] touch")
	}
	return s, nil
}

// Create allocates a new session. With a userRef the session starts authenticated.
// params are filtered through the allow-list.
func (e *Engine) Create(ctx context.Context, userRef string, prompts []string, params map[string]string) (*Session, error) {
	now := e.nowFunc()
	s := &Session{
		ID:         uuid.NewString(),
		OutsideSID: uuid.NewString(),
		State:      StateUnauthenticated,
		CreatedAt:  now,
		LastUsedAt: now,
		Attributes: e.allowedOnly(params),
	}
	s.Attributes[AttrOPBrowserState] = uuid.NewString()
	if _, ok := s.Attributes[AttrAuthStep]; !ok {
		s.Attributes[AttrAuthStep] = "1"
	}
	if len(prompts) > 0 {
		s.Attributes[AttrPrompt] = strings.Join(prompts, " ")
	}
	if userRef != "" {
		s.State = StateAuthenticated
		s.UserRef = userRef
		s.AuthenticationTime = now
	}

	if clientID, redirectURI := s.Attributes[AttrClientID], s.Attributes[AttrRedirectURI]; clientID != "" && redirectURI != "" {
		state, err := computeSessionState(clientID, redirectURI, s.Attributes[AttrOPBrowserState], uuid.NewString())
		if err != nil {
			return nil, errors.Wrap(err, "[Engine.Create] session state")
		}
		s.SessionState = state
	}

	s.Persisted = e.shouldPersist(prompts)
	if s.Persisted {
		if err := e.save(ctx, s); err != nil {
			return nil, errors.Wrap(err, "[Engine.Create] persist")
		}
	}
	return s, nil
}

// shouldPersist applies the persistence policy: a positive unused lifetime, and
// prompt=none sessions only when configured.
func (e *Engine) shouldPersist(prompts []string) bool {
	if e.opts.UnusedLifetime <= 0 {
		return false
	}
	return !utils.NewStringSet(prompts...).Contains("none") || e.opts.PersistOnPromptNone
}

// ReconcileWithRequest folds a re-entering authorization request into an authenticated
// session. A different acr is fatal and returned as *errors.AcrChangedError. Any other
// parameter change resets the flow to step 1 and clears the step markers.
func (e *Engine) ReconcileWithRequest(ctx context.Context, s *Session, incoming map[string]string) (*Session, error) {
	if !s.IsAuthenticated() || len(s.Attributes) == 0 {
		return s, nil
	}
	incoming = e.allowedOnly(incoming)

	sessionAcr := s.Acr()
	if requested := strings.Fields(incoming[AttrAcrValues]); sessionAcr != "" && len(requested) > 0 {
		if !utils.NewStringSet(requested...).Contains(sessionAcr) {
			enabled := true
			for _, acr := range requested {
				enabled = enabled && e.acrEnabled(acr)
			}
			e.logger.Info().Str("session", s.ID).Str("session_acr", sessionAcr).Str("requested_acr", incoming[AttrAcrValues]).Msg("acr changed")
			return nil, &ierrors.AcrChangedError{
				SessionAcr:    sessionAcr,
				RequestedAcr:  incoming[AttrAcrValues],
				MethodEnabled: enabled,
			}
		}
	}

	merged := s.Attributes.Clone()
	for k, v := range incoming {
		merged[k] = v
	}
	if _, ok := incoming[AttrCodeChallenge]; !ok {
		delete(merged, AttrCodeChallenge)
		delete(merged, AttrCodeChallengeMethod)
	}

	if merged.EqualIgnoring(s.Attributes, AttrState) {
		return s, nil
	}

	merged.clearStepMarkers()
	merged[AttrAuthStep] = "1"
	s.Attributes = merged
	if s.Persisted {
		if err := e.save(ctx, s); err != nil {
			return nil, errors.Wrap(err, "[Engine.ReconcileWithRequest] persist")
		}
	}
	return s, nil
}

// Touch refreshes LastUsedAt. Only persisted sessions are written back.
func (e *Engine) Touch(ctx context.Context, s *Session) error {
	s.LastUsedAt = e.nowFunc()
	if !s.Persisted {
		return nil
	}
	return errors.Wrap(e.save(ctx, s), "[Engine.Touch]")
}

// Authenticate performs the one-way transition to authenticated. Persistence is
// re-evaluated since a transient session may now qualify.
func (e *Engine) Authenticate(ctx context.Context, s *Session, userRef, acr string) error {
	if s.IsAuthenticated() || !s.AuthenticationTime.IsZero() {
		return errors.Wrapf(ierrors.ErrInvalidState, "[Engine.Authenticate] session %s already authenticated", s.ID)
	}
	if userRef == "" {
		return errors.Wrap(ierrors.ErrInvalidRequest, "[Engine.Authenticate] userRef is required")
	}

	now := e.nowFunc()
	s.State = StateAuthenticated
	s.UserRef = userRef
	s.AuthenticationTime = now
	s.LastUsedAt = now
	if acr != "" {
		s.Attributes[AttrAcr] = acr
	}
	s.Persisted = e.shouldPersist(s.Prompts())
	if !s.Persisted {
		return nil
	}
	return errors.Wrap(e.save(ctx, s), "[Engine.Authenticate] persist")
}

// Save writes a persisted session back after the caller changed it.
func (e *Engine) Save(ctx context.Context, s *Session) error {
	if !s.Persisted {
		return nil
	}
	return errors.Wrap(e.save(ctx, s), "[Engine.Save]")
}

// ResetToStep moves the flow to step. Going back clears the markers from step up to
// the current step. Skipping ahead marks the skipped steps as passed.
func (e *Engine) ResetToStep(ctx context.Context, s *Session, step int) error {
	if step < 1 {
		return errors.Wrapf(ierrors.ErrInvalidRequest, "[Engine.ResetToStep] step %d", step)
	}
	current := s.AuthStep()
	if step <= current {
		for i := step; i <= current; i++ {
			delete(s.Attributes, StepPassedKey(i))
		}
	} else {
		for i := current + 1; i < step; i++ {
			s.Attributes[StepPassedKey(i)] = "true"
		}
	}
	s.Attributes[AttrAuthStep] = strconv.Itoa(step)
	return e.Save(ctx, s)
}

// MarkStepPassed records completion of step and advances auth_step past it.
func (e *Engine) MarkStepPassed(ctx context.Context, s *Session, step int) error {
	s.Attributes[StepPassedKey(step)] = "true"
	s.Attributes[AttrAuthStep] = strconv.Itoa(step + 1)
	return e.Save(ctx, s)
}

// Remove deletes the session. Removing an absent session is not an error.
func (e *Engine) Remove(ctx context.Context, s *Session) error {
	if !s.Persisted {
		return nil
	}
	if err := e.store.Remove(ctx, storage.KindSession, "", s.ID); err != nil && !errors.Is(err, ierrors.ErrNotFound) {
		return errors.Wrapf(err, "[Engine.Remove] session %s", s.ID)
	}
	return nil
}

// RemoveOlderThan deletes sessions in state whose last use predates now - ttl.
func (e *Engine) RemoveOlderThan(ctx context.Context, state State, ttl time.Duration) (int, error) {
	if ttl < 0 {
		return 0, nil
	}
	n, err := e.store.RemoveByFilter(ctx, storage.Query{
		Kind: storage.KindSession,
		Filter: storage.And(
			storage.Eq(fieldState, string(state)),
			storage.Before(timeLastUsedAt, e.nowFunc().Add(-ttl)),
		),
	})
	return n, errors.Wrapf(err, "[Engine.RemoveOlderThan] %s", state)
}

// RemoveAbsolutelyExpired deletes authenticated sessions past the server lifetime.
func (e *Engine) RemoveAbsolutelyExpired(ctx context.Context) (int, error) {
	if e.opts.ServerLifetime <= 0 {
		return 0, nil
	}
	n, err := e.store.RemoveByFilter(ctx, storage.Query{
		Kind:   storage.KindSession,
		Filter: storage.Before(timeAuthnTime, e.nowFunc().Add(-e.opts.ServerLifetime)),
	})
	return n, errors.Wrap(err, "[Engine.RemoveAbsolutelyExpired]")
}

// Sweep applies every configured lifetime. Each removal runs even if another failed.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	var errs []error
	total := 0

	n, err := e.RemoveOlderThan(ctx, StateUnauthenticated, e.unauthenticatedTTL())
	total += n
	errs = append(errs, err)

	n, err = e.RemoveOlderThan(ctx, StateAuthenticated, e.opts.UnusedLifetime)
	total += n
	errs = append(errs, err)

	n, err = e.RemoveAbsolutelyExpired(ctx)
	total += n
	errs = append(errs, err)

	return total, ierrors.Join(errs...)
}

// unauthenticatedTTL is the effective bound for unauthenticated sessions.
func (e *Engine) unauthenticatedTTL() time.Duration {
	unused, unauth := e.opts.UnusedLifetime, e.opts.UnauthenticatedUnusedLifetime
	switch {
	case unauth < 0:
		return unused
	case unused < 0:
		return unauth
	case unauth < unused:
		return unauth
	default:
		return unused
	}
}

// IsValid applies the unused lifetimes: now - lastUsedAt <= ttl, with Never disabling a bound.
func (e *Engine) IsValid(s *Session) bool {
	if s == nil {
		return false
	}
	idle := e.nowFunc().Sub(s.LastUsedAt)
	if e.opts.UnusedLifetime != Never && idle > e.opts.UnusedLifetime {
		return false
	}
	if s.State == StateUnauthenticated && e.opts.UnauthenticatedUnusedLifetime != Never {
		return idle <= e.opts.UnauthenticatedUnusedLifetime
	}
	return true
}

// IsExpired reports whether an authenticated session outlived the server lifetime.
func (e *Engine) IsExpired(s *Session) bool {
	if s.AuthenticationTime.IsZero() || e.opts.ServerLifetime <= 0 {
		return false
	}
	return e.nowFunc().Sub(s.AuthenticationTime) > e.opts.ServerLifetime
}

// FindByOutsideSID resolves a session by its public sid.
func (e *Engine) FindByOutsideSID(ctx context.Context, sid string) (*Session, error) {
	entries, err := e.store.Find(ctx, storage.Query{
		Kind:   storage.KindSession,
		Filter: storage.Eq(fieldOutsideSID, sid),
		Limit:  1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.FindByOutsideSID]")
	}
	if len(entries) == 0 {
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Engine.FindByOutsideSID] sid %s", sid)
	}
	s, err := decode(entries[0])
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.FindByOutsideSID] decode")
	}
	if !e.IsValid(s) || e.IsExpired(s) {
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Engine.FindByOutsideSID] sid %s expired", sid)
	}
	return s, nil
}

// FindByUser returns the valid authenticated sessions of userRef.
func (e *Engine) FindByUser(ctx context.Context, userRef string) ([]*Session, error) {
	entries, err := e.store.Find(ctx, storage.Query{
		Kind: storage.KindSession,
		Filter: storage.And(
			storage.Eq(fieldUserRef, userRef),
			storage.Eq(fieldState, string(StateAuthenticated)),
		),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Engine.FindByUser]")
	}
	out := make([]*Session, 0, len(entries))
	for _, entry := range entries {
		s, err := decode(entry)
		if err != nil {
			e.logger.Warn().Err(err).Str("key", entry.Key).Msg("skipping undecodable session")
			continue
		}
		if e.IsValid(s) && !e.IsExpired(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// allowedOnly keeps the allow-listed parameters.
func (e *Engine) allowedOnly(params map[string]string) Attributes {
	out := make(Attributes, len(params))
	for k, v := range params {
		if e.allowed.Contains(k) {
			out[k] = v
		}
	}
	return out
}

func (e *Engine) save(ctx context.Context, s *Session) error {
	entry, err := storage.NewEntry(storage.KindSession, "", s.ID, s)
	if err != nil {
		return err
	}
	entry.Fields[fieldState] = string(s.State)
	entry.Fields[fieldOutsideSID] = s.OutsideSID
	if s.UserRef != "" {
		entry.Fields[fieldUserRef] = s.UserRef
	}
	entry.Times[timeLastUsedAt] = s.LastUsedAt
	if !s.AuthenticationTime.IsZero() {
		entry.Times[timeAuthnTime] = s.AuthenticationTime
	}
	return e.store.Merge(ctx, entry)
}

func decode(entry *storage.Entry) (*Session, error) {
	var s Session
	if err := entry.Decode(&s); err != nil {
		return nil, err
	}
	if s.Attributes == nil {
		s.Attributes = Attributes{}
	}
	return &s, nil
}
