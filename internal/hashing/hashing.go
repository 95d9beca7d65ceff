// Package hashing provides the one-way digest applied to token codes before storage.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

// Hasher is a deterministic, one-way string digest.
type Hasher interface {
	Hash(value string) string
}

// SHA256 hashes with sha256 and hex encodes the digest.
type SHA256 struct{}

var _ Hasher = SHA256{}

func (SHA256) Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Keyed is a blake2b-256 MAC. A leaked store cannot be brute forced without the key.
type Keyed struct {
	key []byte
}

var _ Hasher = (*Keyed)(nil)

// NewKeyed returns a keyed hasher. blake2b accepts keys up to 64 bytes.
func NewKeyed(key []byte) (*Keyed, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, errors.Errorf("[hashing.NewKeyed] key length must be 1..%d bytes, got %d", blake2b.Size, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Keyed{key: k}, nil
}

func (k *Keyed) Hash(value string) string {
	h, err := blake2b.New256(k.key)
	if err != nil {
		// key length is validated in NewKeyed
		panic(err)
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

// New returns the keyed hasher when a key is configured, sha256 otherwise.
func New(key string) (Hasher, error) {
	if key == "" {
		return SHA256{}, nil
	}
	return NewKeyed([]byte(key))
}
