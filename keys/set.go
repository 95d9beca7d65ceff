package keys

import (
	"context"
	"crypto"
	"sort"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
	"github.com/JanssenProject/jans-sub021/storage"
)

const timeCreatedAt = "createdAt"

// storedKey is the durable form of a key pair.
type storedKey struct {
	KeyID     string    `json:"kid"`
	PEM       string    `json:"pem"`
	CreatedAt time.Time `json:"createdAt"`
}

// Set holds the current signing key and the previous one, which stays published for
// verification until the next rotation.
type Set struct {
	store    storage.Store
	interval time.Duration
	bits     int
	nowFunc  func() time.Time
	logger   zerolog.Logger

	lock     sync.RWMutex
	current  *KeyPair
	previous *KeyPair
}

// SetOption defines a function type to modify the Set instance.
type SetOption func(*Set)

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) SetOption {
	return func(s *Set) {
		s.nowFunc = now
	}
}

// WithLogger sets the logger used by the key set.
func WithLogger(logger zerolog.Logger) SetOption {
	return func(s *Set) {
		s.logger = logger
	}
}

// WithKeyBits sets the RSA modulus size of generated keys.
func WithKeyBits(bits int) SetOption {
	return func(s *Set) {
		s.bits = bits
	}
}

// NewSet loads the stored keys, generating the first one when none exist. An interval
// <= 0 disables scheduled rotation.
func NewSet(ctx context.Context, store storage.Store, interval time.Duration, options ...SetOption) (*Set, error) {
	s := &Set{
		store:    store,
		interval: interval,
		bits:     minKeyBits,
		nowFunc:  time.Now,
		logger:   logging.Component("keys"),
	}
	for _, opt := range options {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, errors.Wrap(err, "[NewSet] load")
	}
	if s.current == nil {
		if err := s.Rotate(ctx); err != nil {
			return nil, errors.Wrap(err, "[NewSet] initial key")
		}
	}
	return s, nil
}

func (s *Set) load(ctx context.Context) error {
	entries, err := s.store.Find(ctx, storage.Query{Kind: storage.KindKey})
	if err != nil {
		return err
	}
	pairs := make([]*KeyPair, 0, len(entries))
	for _, e := range entries {
		var sk storedKey
		if err := e.Decode(&sk); err != nil {
			s.logger.Warn().Err(err).Str("key", e.Key).Msg("skipping undecodable signing key")
			continue
		}
		pk, err := ParsePrivateKeyPEM(sk.PEM)
		if err != nil {
			s.logger.Warn().Err(err).Str("kid", sk.KeyID).Msg("skipping unparsable signing key")
			continue
		}
		pairs = append(pairs, &KeyPair{KeyID: sk.KeyID, PrivateKey: pk, CreatedAt: sk.CreatedAt})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].CreatedAt.After(pairs[j].CreatedAt) })

	s.lock.Lock()
	defer s.lock.Unlock()
	if len(pairs) > 0 {
		s.current = pairs[0]
	}
	if len(pairs) > 1 {
		s.previous = pairs[1]
	}
	return nil
}

// RotateIfDue rotates when the current key is at least one interval old.
func (s *Set) RotateIfDue(ctx context.Context) (bool, error) {
	if s.interval <= 0 {
		return false, nil
	}
	s.lock.RLock()
	due := s.current == nil || s.nowFunc().Sub(s.current.CreatedAt) >= s.interval
	s.lock.RUnlock()
	if !due {
		return false, nil
	}
	return true, s.Rotate(ctx)
}

// Rotate makes a fresh key current. Keys older than the previous one are removed.
func (s *Set) Rotate(ctx context.Context) error {
	kp, err := GenerateKeyPair(uuid.NewString(), s.bits, s.nowFunc())
	if err != nil {
		return errors.Wrap(err, "[Set.Rotate]")
	}
	entry, err := storage.NewEntry(storage.KindKey, "", kp.KeyID, storedKey{
		KeyID:     kp.KeyID,
		PEM:       kp.PrivateKeyPEM(),
		CreatedAt: kp.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "[Set.Rotate] marshal")
	}
	entry.Times[timeCreatedAt] = kp.CreatedAt
	if err := s.store.Merge(ctx, entry); err != nil {
		return errors.Wrap(err, "[Set.Rotate] persist")
	}

	s.lock.Lock()
	retired := s.previous
	s.previous = s.current
	s.current = kp
	s.lock.Unlock()

	if retired != nil {
		if err := s.store.Remove(ctx, storage.KindKey, "", retired.KeyID); err != nil && !errors.Is(err, ierrors.ErrNotFound) {
			s.logger.Warn().Err(err).Str("kid", retired.KeyID).Msg("failed to remove retired signing key")
		}
	}
	s.logger.Info().Str("kid", kp.KeyID).Msg("signing key rotated")
	return nil
}

// Signer signs with the current key.
func (s *Set) Signer() *Signer {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return NewSigner(s.current)
}

// JWKS publishes the current and previous public keys.
func (s *Set) JWKS() JWKS {
	s.lock.RLock()
	defer s.lock.RUnlock()
	jwks := JWKS{Keys: []JWK{s.current.JWK()}}
	if s.previous != nil {
		jwks.Keys = append(jwks.Keys, s.previous.JWK())
	}
	return jwks
}

func (s *Set) publicKeys() []crypto.PublicKey {
	s.lock.RLock()
	defer s.lock.RUnlock()
	out := []crypto.PublicKey{s.current.Public()}
	if s.previous != nil {
		out = append(out, s.previous.Public())
	}
	return out
}

// IDTokenVerifier verifies id tokens issued by this server for clientID. Expiry is not
// checked since an id_token_hint may be presented after the token expired.
func (s *Set) IDTokenVerifier(issuer, clientID string) *oidc.IDTokenVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: s.publicKeys()}
	return oidc.NewVerifier(issuer, keySet, &oidc.Config{
		ClientID:             clientID,
		SkipClientIDCheck:    clientID == "",
		SkipExpiryCheck:      true,
		SupportedSigningAlgs: []string{RS256},
		Now:                  s.nowFunc,
	})
}
