package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/JanssenProject/jans-sub021/cache"
	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/hashing"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Indexed fields of durable token entries.
const (
	fieldCode       = "code"
	fieldType       = "type"
	fieldGrantID    = "grantId"
	fieldSessionRef = "sessionRef"
	fieldUserRef    = "userRef"
	timeExpiresAt   = "expiresAt"
)

// Store issues, finds and revokes grant records over the cache and durable tiers.
type Store struct {
	durable storage.Store
	cache   cache.Cache
	hasher  hashing.Hasher
	policy  Policy
	clients clients.Repo
	nowFunc func() time.Time
	logger  zerolog.Logger
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClientRepo enables per client access token lifetimes.
func WithClientRepo(repo clients.Repo) StoreOption {
	return func(s *Store) {
		s.clients = repo
	}
}

func NewStore(durable storage.Store, c cache.Cache, hasher hashing.Hasher, policy Policy, options ...StoreOption) (*Store, error) {
	if durable == nil || c == nil {
		return nil, errors.New("[NewStore] durable store and cache are required")
	}
	if hasher == nil {
		hasher = hashing.SHA256{}
	}
	s := &Store{
		durable: durable,
		cache:   c,
		hasher:  hasher,
		policy:  policy,
		nowFunc: time.Now,
		logger:  logging.Component("token"),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Hash returns the digest a raw code is stored under.
func (s *Store) Hash(raw string) string {
	return s.hasher.Hash(raw)
}

// Issue stores a new record for req.RawCode in the tier selected by the policy.
func (s *Store) Issue(ctx context.Context, req IssueRequest) (*Record, error) {
	if req.RawCode == "" || req.ClientID == "" || req.Type == "" {
		return nil, errors.Wrap(ierrors.ErrInvalidRequest, "[Store.Issue] raw code, client id and type are required")
	}

	now := s.nowFunc()
	ttl := s.lifetime(req)
	r := &Record{
		Code:                s.hasher.Hash(req.RawCode),
		Type:                req.Type,
		ClientID:            req.ClientID,
		GrantID:             req.GrantID,
		SessionRef:          req.SessionRef,
		UserRef:             req.UserRef,
		Scope:               req.Scope,
		Nonce:               req.Nonce,
		IsImplicitFlow:      req.IsImplicitFlow,
		Tier:                s.route(req),
		CreatedAt:           now,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
	}
	if r.GrantID == "" {
		r.GrantID = uuid.NewString()
	}
	if ttl > 0 {
		r.ExpiresAt = now.Add(ttl)
	}

	var err error
	if r.Tier == TierCache {
		err = s.putCached(ctx, r, ttl)
	} else {
		err = s.putDurable(ctx, r)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Store.Issue] %s for client %s", r.Type, r.ClientID)
	}
	return r, nil
}

// route decides the tier of a new record.
func (s *Store) route(req IssueRequest) Tier {
	if req.IsImplicitFlow && s.policy.CacheAllImplicitFlowObjects {
		return TierCache
	}
	switch req.Type {
	case TypeIDToken:
		if !s.policy.PersistIDToken {
			return TierCache
		}
	case TypeRefreshToken:
		if !s.policy.PersistRefreshToken {
			return TierCache
		}
	case TypeAccessToken:
		if !s.policy.PersistAccessToken {
			return TierCache
		}
	}
	return TierDurable
}

// lifetime is the per type lifetime. A positive client access token lifetime wins.
func (s *Store) lifetime(req IssueRequest) time.Duration {
	switch req.Type {
	case TypeAuthorizationCode:
		return s.policy.AuthorizationCodeLifetime
	case TypeAccessToken:
		if s.clients != nil {
			if c, err := s.clients.Get(req.ClientID); err == nil && c.AccessTokenLifetime > 0 {
				return c.AccessTokenLifetime
			}
		}
		return s.policy.AccessTokenLifetime
	case TypeRefreshToken:
		return s.policy.RefreshTokenLifetime
	case TypeIDToken:
		return s.policy.IDTokenLifetime
	}
	return 0
}

// Lifetime is the lifetime a record of typ issued to clientID gets.
func (s *Store) Lifetime(typ Type, clientID string) time.Duration {
	return s.lifetime(IssueRequest{Type: typ, ClientID: clientID})
}

type index struct {
	namespace string
	key       string
}

func indicesOf(r *Record) []index {
	out := []index{{cache.NamespaceClientTokens, r.ClientID}}
	if r.SessionRef != "" {
		out = append(out, index{cache.NamespaceSessionTokens, r.SessionRef})
	}
	if r.GrantID != "" {
		out = append(out, index{cache.NamespaceGrantTokens, r.GrantID})
	}
	return out
}

// putCached writes the record and its index memberships. A failed index write removes
// whatever was already written.
func (s *Store) putCached(ctx context.Context, r *Record, ttl time.Duration) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	if err := s.cache.Put(ctx, cache.NamespaceToken, r.Code, data, ttl); err != nil {
		return errors.Wrap(err, "cache put")
	}

	var added []index
	for _, idx := range indicesOf(r) {
		if err := s.cache.AddMember(ctx, idx.namespace, idx.key, r.Code, ttl); err != nil {
			s.compensate(ctx, r, added)
			return errors.Wrapf(err, "index %s", idx.namespace)
		}
		added = append(added, idx)
	}
	return nil
}

func (s *Store) compensate(ctx context.Context, r *Record, added []index) {
	for _, idx := range added {
		if err := s.cache.RemoveMember(ctx, idx.namespace, idx.key, r.Code); err != nil {
			s.logger.Warn().Err(err).Str("namespace", idx.namespace).Msg("failed to roll back index membership")
		}
	}
	if err := s.cache.Remove(ctx, cache.NamespaceToken, r.Code); err != nil {
		s.logger.Warn().Err(err).Str("client", r.ClientID).Msg("failed to roll back cached token")
	}
}

// putDurable writes under the client's branch, creating it on first use.
func (s *Store) putDurable(ctx context.Context, r *Record) error {
	exists, err := s.durable.ContainsBranch(ctx, storage.KindToken, r.ClientID)
	if err != nil {
		return errors.Wrap(err, "branch lookup")
	}
	if !exists {
		if err := s.durable.CreateBranch(ctx, storage.KindToken, r.ClientID); err != nil {
			return errors.Wrap(err, "create branch")
		}
	}
	entry, err := toEntry(r)
	if err != nil {
		return errors.Wrap(err, "marshal")
	}
	return errors.Wrap(s.durable.Persist(ctx, entry), "persist")
}

func toEntry(r *Record) (*storage.Entry, error) {
	entry, err := storage.NewEntry(storage.KindToken, r.ClientID, r.Code, r)
	if err != nil {
		return nil, err
	}
	entry.Fields[fieldCode] = r.Code
	entry.Fields[fieldType] = string(r.Type)
	entry.Fields[fieldGrantID] = r.GrantID
	if r.SessionRef != "" {
		entry.Fields[fieldSessionRef] = r.SessionRef
	}
	if r.UserRef != "" {
		entry.Fields[fieldUserRef] = r.UserRef
	}
	if !r.ExpiresAt.IsZero() {
		entry.Times[timeExpiresAt] = r.ExpiresAt
	}
	return entry, nil
}

// FindByCode re-hashes raw and looks it up in the cache, then the durable store
// unless cacheOnly.
func (s *Store) FindByCode(ctx context.Context, raw string, cacheOnly bool) (*Record, error) {
	hash := s.hasher.Hash(raw)
	r, err := s.getCached(ctx, hash)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ierrors.ErrNotFound) || cacheOnly {
		return nil, errors.Wrap(err, "[Store.FindByCode]")
	}

	records, err := s.findDurable(ctx, storage.Query{
		Kind:   storage.KindToken,
		Scope:  storage.ScopeSubtree,
		Filter: storage.Eq(fieldCode, hash),
		Limit:  1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Store.FindByCode]")
	}
	if len(records) == 0 {
		return nil, errors.Wrap(ierrors.ErrNotFound, "[Store.FindByCode] token")
	}
	return records[0], nil
}

// FindByGrantID returns every record of the grant from both tiers.
func (s *Store) FindByGrantID(ctx context.Context, grantID string) ([]*Record, error) {
	records, err := s.findBoth(ctx, cache.NamespaceGrantTokens, grantID, storage.Eq(fieldGrantID, grantID))
	return records, errors.Wrapf(err, "[Store.FindByGrantID] %s", grantID)
}

// FindBySession returns every record bound to sessionRef from both tiers.
func (s *Store) FindBySession(ctx context.Context, sessionRef string) ([]*Record, error) {
	records, err := s.findBoth(ctx, cache.NamespaceSessionTokens, sessionRef, storage.Eq(fieldSessionRef, sessionRef))
	return records, errors.Wrapf(err, "[Store.FindBySession] %s", sessionRef)
}

// FindByClient pages through the durable records of clientID.
func (s *Store) FindByClient(ctx context.Context, clientID string, offset, limit int) ([]*Record, error) {
	records, err := s.findDurable(ctx, storage.Query{
		Kind:   storage.KindToken,
		Branch: clientID,
		Offset: offset,
		Limit:  limit,
	})
	return records, errors.Wrapf(err, "[Store.FindByClient] %s", clientID)
}

func (s *Store) findBoth(ctx context.Context, namespace, key string, filter storage.Filter) ([]*Record, error) {
	records, err := s.findDurable(ctx, storage.Query{
		Kind:   storage.KindToken,
		Scope:  storage.ScopeSubtree,
		Filter: filter,
	})
	if err != nil {
		return nil, err
	}
	cached, err := s.membersOf(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	return append(records, cached...), nil
}

// membersOf resolves an index set. Members whose record already expired are skipped.
func (s *Store) membersOf(ctx context.Context, namespace, key string) ([]*Record, error) {
	hashes, err := s.cache.Members(ctx, namespace, key)
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", namespace)
	}
	out := make([]*Record, 0, len(hashes))
	for _, hash := range hashes {
		r, err := s.getCached(ctx, hash)
		if errors.Is(err, ierrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) getCached(ctx context.Context, hash string) (*Record, error) {
	data, err := s.cache.Get(ctx, cache.NamespaceToken, hash)
	if errors.Is(err, cache.ErrMiss) {
		return nil, errors.Wrap(ierrors.ErrNotFound, "cached token")
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode cached token")
	}
	return &r, nil
}

func (s *Store) findDurable(ctx context.Context, q storage.Query) ([]*Record, error) {
	entries, err := s.durable.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(entries))
	for _, e := range entries {
		var r Record
		if err := e.Decode(&r); err != nil {
			s.logger.Warn().Err(err).Str("branch", e.Branch).Msg("skipping undecodable token")
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// Revoke removes r from its tier. Revoking an absent record is not an error.
func (s *Store) Revoke(ctx context.Context, r *Record) error {
	if r.Tier == TierCache {
		if err := s.cache.Remove(ctx, cache.NamespaceToken, r.Code); err != nil {
			return errors.Wrap(err, "[Store.Revoke] cache")
		}
		for _, idx := range indicesOf(r) {
			if err := s.cache.RemoveMember(ctx, idx.namespace, idx.key, r.Code); err != nil {
				s.logger.Warn().Err(err).Str("namespace", idx.namespace).Msg("stale index membership left behind")
			}
		}
		return nil
	}
	err := s.durable.Remove(ctx, storage.KindToken, r.ClientID, r.Code)
	if err != nil && !errors.Is(err, ierrors.ErrNotFound) {
		return errors.Wrap(err, "[Store.Revoke] durable")
	}
	return nil
}

// revokeAll revokes each record, logging and skipping failures.
func (s *Store) revokeAll(ctx context.Context, records []*Record) int {
	n := 0
	for _, r := range records {
		if err := s.Revoke(ctx, r); err != nil {
			s.logger.Err(err).Str("client", r.ClientID).Str("type", string(r.Type)).Msg("failed to revoke token")
			continue
		}
		n++
	}
	return n
}

// RevokeByGrantID revokes every record of the grant.
func (s *Store) RevokeByGrantID(ctx context.Context, grantID string) (int, error) {
	records, err := s.FindByGrantID(ctx, grantID)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeByGrantID]")
	}
	return s.revokeAll(ctx, records), nil
}

// RevokeBySession revokes every record issued within the session.
func (s *Store) RevokeBySession(ctx context.Context, sessionRef string) (int, error) {
	records, err := s.FindBySession(ctx, sessionRef)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeBySession]")
	}
	n := s.revokeAll(ctx, records)
	if err := s.cache.Remove(ctx, cache.NamespaceSessionTokens, sessionRef); err != nil {
		s.logger.Warn().Err(err).Str("session", sessionRef).Msg("failed to drop session index")
	}
	return n, nil
}

// RevokeByAuthorizationCode revokes the grant the code belongs to, the code included.
func (s *Store) RevokeByAuthorizationCode(ctx context.Context, raw string) (int, error) {
	code, err := s.FindByCode(ctx, raw, false)
	if errors.Is(err, ierrors.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeByAuthorizationCode]")
	}
	n, err := s.RevokeByGrantID(ctx, code.GrantID)
	return n, errors.Wrap(err, "[Store.RevokeByAuthorizationCode]")
}

// RevokeByClient revokes every record of clientID in both tiers.
func (s *Store) RevokeByClient(ctx context.Context, clientID string) (int, error) {
	records, err := s.findDurable(ctx, storage.Query{Kind: storage.KindToken, Branch: clientID})
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeByClient]")
	}
	cached, err := s.membersOf(ctx, cache.NamespaceClientTokens, clientID)
	if err != nil {
		return 0, errors.Wrap(err, "[Store.RevokeByClient]")
	}
	n := s.revokeAll(ctx, append(records, cached...))
	if err := s.cache.Remove(ctx, cache.NamespaceClientTokens, clientID); err != nil {
		s.logger.Warn().Err(err).Str("client", clientID).Msg("failed to drop client index")
	}
	return n, nil
}

// RemoveExpired deletes durable records whose expiry passed. Cached records expire
// through their ttl.
func (s *Store) RemoveExpired(ctx context.Context) (int, error) {
	n, err := s.durable.RemoveByFilter(ctx, storage.Query{
		Kind:   storage.KindToken,
		Scope:  storage.ScopeSubtree,
		Filter: storage.Before(timeExpiresAt, s.nowFunc()),
	})
	return n, errors.Wrap(err, "[Store.RemoveExpired]")
}

// RemoveForExpiredClientSecrets revokes the tokens of every client whose secret expired.
func (s *Store) RemoveForExpiredClientSecrets(ctx context.Context, list []*clients.Client) (int, error) {
	now := s.nowFunc()
	total := 0
	var errs []error
	for _, c := range list {
		if !c.SecretExpired(now) {
			continue
		}
		n, err := s.RevokeByClient(ctx, c.ID)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, ierrors.Join(errs...)
}

// Consume redeems an authorization code once. Removing the record is the claim: of
// concurrent redemptions only the caller whose remove succeeds gets the record. A
// redemption of an already redeemed code revokes every token of its grant.
func (s *Store) Consume(ctx context.Context, raw, clientID string) (*Record, error) {
	hash := s.hasher.Hash(raw)
	r, err := s.FindByCode(ctx, raw, false)
	if errors.Is(err, ierrors.ErrNotFound) {
		grantID, cerr := s.cache.Get(ctx, cache.NamespaceConsumedCodes, hash)
		if cerr != nil {
			return nil, errors.Wrap(ierrors.ErrInvalidGrant, "[Store.Consume] unknown code")
		}
		return nil, s.replayed(ctx, string(grantID))
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Consume]")
	}
	if r.Type != TypeAuthorizationCode || r.ClientID != clientID {
		return nil, errors.Wrap(ierrors.ErrInvalidGrant, "[Store.Consume] code not issued to client")
	}
	if !r.ExpiresAt.IsZero() && !s.nowFunc().Before(r.ExpiresAt) {
		return nil, errors.Wrap(ierrors.ErrInvalidGrant, "[Store.Consume] code expired")
	}

	claimed, err := s.claim(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Consume] claim")
	}
	if !claimed {
		return nil, s.replayed(ctx, r.GrantID)
	}
	if err := s.cache.Put(ctx, cache.NamespaceConsumedCodes, hash, []byte(r.GrantID), s.grantLifetime()); err != nil {
		s.logger.Warn().Err(err).Str("grant", r.GrantID).Msg("replay marker not stored")
	}
	return r, nil
}

// claim removes the code record and reports whether this call removed it.
func (s *Store) claim(ctx context.Context, r *Record) (bool, error) {
	if r.Tier == TierCache {
		_, err := s.cache.Take(ctx, cache.NamespaceToken, r.Code)
		if errors.Is(err, cache.ErrMiss) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, idx := range indicesOf(r) {
			if err := s.cache.RemoveMember(ctx, idx.namespace, idx.key, r.Code); err != nil {
				s.logger.Warn().Err(err).Str("namespace", idx.namespace).Msg("stale index membership left behind")
			}
		}
		return true, nil
	}
	err := s.durable.Remove(ctx, storage.KindToken, r.ClientID, r.Code)
	if errors.Is(err, ierrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// replayed revokes the grant of a code redeemed twice.
func (s *Store) replayed(ctx context.Context, grantID string) error {
	n, err := s.RevokeByGrantID(ctx, grantID)
	if err != nil {
		s.logger.Err(err).Str("grant", grantID).Msg("failed to revoke replayed grant")
	}
	s.logger.Warn().Str("grant", grantID).Int("revoked", n).Msg("authorization code replayed, grant revoked")
	return errors.Wrap(ierrors.ErrInvalidGrant, "[Store.Consume] code already redeemed")
}

// grantLifetime bounds how long tokens of a grant can outlive its code.
func (s *Store) grantLifetime() time.Duration {
	if s.policy.RefreshTokenLifetime > s.policy.AccessTokenLifetime {
		return s.policy.RefreshTokenLifetime
	}
	return s.policy.AccessTokenLifetime
}
