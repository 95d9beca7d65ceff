package sessions

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionStateFor returns the session_state value for clientID and redirectURI. The
// stored value is reused while the session was created for the same client and
// redirect uri, otherwise a fresh salt is drawn.
func (e *Engine) SessionStateFor(s *Session, clientID, redirectURI string) (string, error) {
	if s.SessionState != "" &&
		s.Attributes[AttrClientID] == clientID &&
		s.Attributes[AttrRedirectURI] == redirectURI {
		return s.SessionState, nil
	}
	opbs := s.Attributes[AttrOPBrowserState]
	if opbs == "" {
		return "", errors.Wrapf(ierrors.ErrInvalidState, "[Engine.SessionStateFor] session %s has no browser state", s.ID)
	}
	return computeSessionState(clientID, redirectURI, opbs, uuid.NewString())
}

// computeSessionState is hex(sha256(client_id origin opbs salt)).salt
func computeSessionState(clientID, redirectURI, opbs, salt string) (string, error) {
	origin, err := originOf(redirectURI)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{clientID, origin, opbs, salt}, " ")))
	return hex.EncodeToString(sum[:]) + "." + salt, nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Wrapf(ierrors.ErrInvalidRequest, "redirect uri %q: %v", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Wrapf(ierrors.ErrInvalidRequest, "redirect uri %q is not absolute", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// VerifySessionState recomputes value for the given browser state.
func VerifySessionState(value, clientID, redirectURI, opbs string) bool {
	i := strings.LastIndex(value, ".")
	if i < 0 {
		return false
	}
	expected, err := computeSessionState(clientID, redirectURI, opbs, value[i+1:])
	return err == nil && expected == value
}
