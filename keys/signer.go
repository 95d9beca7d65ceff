package keys

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs claims with one key pair.
type Signer struct {
	keyPair *KeyPair
}

func NewSigner(keyPair *KeyPair) *Signer {
	return &Signer{keyPair: keyPair}
}

func (s *Signer) KeyID() string {
	return s.keyPair.KeyID
}

// Sign returns the compact JWS of claims with the kid header set.
func (s *Signer) Sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(s.keyPair.SigningMethod(), claims)
	t.Header["kid"] = s.keyPair.KeyID

	signed, err := t.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrapf(err, "[Signer.Sign] kid %s", s.keyPair.KeyID)
	}
	return signed, nil
}
