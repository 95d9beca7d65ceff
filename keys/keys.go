// Package keys holds the RSA signing keys used for id tokens and id_token_hint
// verification, together with their rotation.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// RS256 is the only algorithm issued.
const RS256 = "RS256"

const minKeyBits = 2048

// KeyPair is one signing key and the time it became current.
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	CreatedAt  time.Time
}

// JWKS is a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// GenerateKeyPair creates an RSA key. Sizes under 2048 bits are raised to 2048.
func GenerateKeyPair(keyID string, bits int, createdAt time.Time) (*KeyPair, error) {
	if bits < minKeyBits {
		bits = minKeyBits
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "[GenerateKeyPair] rsa")
	}
	return &KeyPair{KeyID: keyID, PrivateKey: privateKey, CreatedAt: createdAt}, nil
}

func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

func (kp *KeyPair) Public() *rsa.PublicKey {
	return &kp.PrivateKey.PublicKey
}

func (kp *KeyPair) JWK() JWK {
	pub := kp.Public()
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: RS256,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PrivateKeyPEM encodes the private key as PKCS1 PEM.
func (kp *KeyPair) PrivateKeyPEM() string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	}))
}

// ParsePrivateKeyPEM is the inverse of PrivateKeyPEM.
func ParsePrivateKeyPEM(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, errors.New("[ParsePrivateKeyPEM] no PEM block")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "[ParsePrivateKeyPEM] pkcs1")
	}
	return key, nil
}
