package users_test

import (
	"testing"

	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/users"
	fakeuserrepo "github.com/JanssenProject/jans-sub021/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "too short", password: "Ab1", wantErr: true},
		{name: "no upper", password: "password1", wantErr: true},
		{name: "no lower", password: "PASSWORD1", wantErr: true},
		{name: "no number", password: "Password", wantErr: true},
		{name: "valid", password: "Password1", wantErr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidatePasswordStrength(tt.password)
			if tt.wantErr {
				require.ErrorIs(t, err, users.ErrWeakPassword)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCanAuthenticate(t *testing.T) {
	hash, err := users.HashPassword("Password1")
	require.NoError(t, err)

	u := &users.User{ID: "u1", Username: "jdoe", PasswordHash: hash}
	require.True(t, u.CanAuthenticate("Password1"))
	require.False(t, u.CanAuthenticate("wrong"))

	u.Blocked = true
	require.False(t, u.CanAuthenticate("Password1"))
}

func TestFakeRepoRejectsTakenUsername(t *testing.T) {
	r := fakeuserrepo.NewFakeUserRepo()
	first := &users.User{Username: "jdoe"}
	require.NoError(t, r.Upsert(first))
	require.NotEmpty(t, first.ID)

	require.Error(t, r.Upsert(&users.User{Username: "jdoe"}))

	first.Username = "john"
	require.NoError(t, r.Upsert(first))
	_, err := r.GetByUsername("jdoe")
	require.True(t, ierrors.Is(err, ierrors.ErrNotFound))
	got, err := r.GetByUsername("john")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}
