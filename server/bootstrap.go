package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/JanssenProject/jans-sub021/clients"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/users"
)

// Bootstrap creates the administrator and the admin client when they do not exist yet.
// It returns the generated password on first creation, empty otherwise.
func (s *Server) Bootstrap(ctx context.Context) (generatedPassword string, err error) {
	generatedPassword, err = s.createSystemAdmin(ctx)
	if err != nil {
		return "", errors.Wrap(err, "[Server.Bootstrap]")
	}
	if err := s.createAdminClient(ctx); err != nil {
		return "", errors.Wrap(err, "[Server.Bootstrap]")
	}
	return generatedPassword, nil
}

// createAdminClient registers a public client using PKCE for the admin console.
func (s *Server) createAdminClient(_ context.Context) error {
	clientID := s.config.GetAdminClientID()
	if clientID == "" {
		return nil
	}
	if _, err := s.Clients.Get(clientID); err == nil {
		s.logger.Debug().Str("client", clientID).Msg("admin client already exists")
		return nil
	} else if !ierrors.Is(err, ierrors.ErrNotFound) {
		return errors.Wrap(err, "[Server.createAdminClient]")
	}

	adminClient := &clients.Client{
		ID:           clientID,
		Type:         clients.ClientTypePublic,
		RedirectURIs: s.config.GetAdminRedirectURIs(),
		Scopes:       []string{"openid", "profile", "email", "offline_access"},
		Trusted:      true,
	}
	if err := s.Clients.Upsert(adminClient); err != nil {
		return errors.Wrap(err, "[Server.createAdminClient]")
	}
	s.logger.Info().Str("client", clientID).Strs("redirect_uris", adminClient.RedirectURIs).Msg("admin client created")
	return nil
}

func (s *Server) createSystemAdmin(_ context.Context) (string, error) {
	username := s.config.GetSystemAdminUser()
	if username == "" {
		return "", nil
	}
	if _, err := s.Users.GetByUsername(username); err == nil {
		return "", nil
	} else if !ierrors.Is(err, ierrors.ErrNotFound) {
		return "", errors.Wrap(err, "[Server.createSystemAdmin]")
	}

	password := s.config.GetSystemAdminPassword()
	generated := ""
	if password != "" {
		if err := users.ValidatePasswordStrength(password); err != nil {
			return "", errors.Wrap(err, "[Server.createSystemAdmin] configured password")
		}
	} else {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", errors.Wrap(err, "[Server.createSystemAdmin] generating password")
		}
		password = base64.RawURLEncoding.EncodeToString(passwordBytes)
		generated = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", errors.Wrap(err, "[Server.createSystemAdmin] hashing password")
	}
	admin := &users.User{
		Username:     username,
		PasswordHash: passwordHash,
		DateJoined:   s.nowFunc(),
		Verified:     true,
	}
	if err := s.Users.Upsert(admin); err != nil {
		return "", errors.Wrap(err, "[Server.createSystemAdmin]")
	}
	s.logger.Info().Str("user", admin.ID).Str("username", username).Msg("administrator created")
	return generated, nil
}
