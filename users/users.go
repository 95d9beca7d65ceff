// Package users holds the principals sessions are authenticated for.
package users

import (
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var ErrWeakPassword = errors.New("weak password")

// User is a principal. ID is the userRef recorded on sessions, grants and consent.
type User struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	// PasswordHash is a bcrypt hash and is never serialised.
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"date_joined,omitempty"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	Verified     bool      `json:"verified,omitempty"`
	// Blocked users fail every password check.
	Blocked bool `json:"blocked,omitempty"`
}

// ValidatePasswordStrength enforces the policy for operator supplied passwords:
// minimum length plus upper case, lower case and digit classes.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return errors.Wrapf(ErrWeakPassword, "shorter than %d characters", minPasswordLength)
	}
	var missing []string
	if !strings.ContainsFunc(password, unicode.IsUpper) {
		missing = append(missing, "upper case letter")
	}
	if !strings.ContainsFunc(password, unicode.IsLower) {
		missing = append(missing, "lower case letter")
	}
	if !strings.ContainsFunc(password, unicode.IsDigit) {
		missing = append(missing, "digit")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrWeakPassword, "missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "[users.HashPassword]")
	}
	return string(hash), nil
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// CanAuthenticate reports whether password matches and the account may log in.
func (u *User) CanAuthenticate(password string) bool {
	return !u.Blocked && CheckPasswordHash(password, u.PasswordHash)
}
