package users

import "time"

// UserRepo is the user directory the password authenticator reads from.
type UserRepo interface {
	GetByID(userID string) (*User, error)
	GetByUsername(username string) (*User, error)
	SetLastLogin(userID string, at time.Time) error
	Upsert(user *User) error
	Delete(userID string) error
}
