package token

import (
	"crypto/subtle"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// VerifyPKCE checks verifier against the challenge stored on an authorization code.
// Codes issued without a challenge accept any verifier.
func VerifyPKCE(r *Record, verifier string) error {
	if r.CodeChallenge == "" {
		return nil
	}
	if verifier == "" {
		return errors.Wrap(ierrors.ErrInvalidGrant, "[VerifyPKCE] code_verifier is required")
	}

	var computed string
	switch r.CodeChallengeMethod {
	case PKCEMethodS256:
		computed = oauth2.S256ChallengeFromVerifier(verifier)
	case PKCEMethodPlain, "":
		computed = verifier
	default:
		return errors.Wrapf(ierrors.ErrInvalidGrant, "[VerifyPKCE] unsupported method %q", r.CodeChallengeMethod)
	}
	if subtle.ConstantTimeCompare([]byte(computed), []byte(r.CodeChallenge)) != 1 {
		return errors.Wrap(ierrors.ErrInvalidGrant, "[VerifyPKCE] code_verifier mismatch")
	}
	return nil
}
