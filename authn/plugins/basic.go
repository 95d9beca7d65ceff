// Package plugins holds the statically compiled authenticators.
package plugins

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/JanssenProject/jans-sub021/authn"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/users"
)

const (
	TypeBasic   = "basic"
	TypeForward = "forward"

	ParamUsername = "username"
	ParamPassword = "password"

	attrLoginPage = "login_page"
	defaultPage   = "/login"
)

// Builtin returns the factories of every compiled in authenticator.
func Builtin(userRepo users.UserRepo) authn.Factories {
	return authn.Factories{
		TypeBasic:   func() authn.Plugin { return NewBasic(userRepo, time.Now) },
		TypeForward: func() authn.Plugin { return &Forward{} },
	}
}

// Basic is a single step username and password authenticator backed by the user repo.
type Basic struct {
	users   users.UserRepo
	nowFunc func() time.Time
}

var _ authn.Plugin = (*Basic)(nil)

func NewBasic(userRepo users.UserRepo, nowFunc func() time.Time) *Basic {
	return &Basic{users: userRepo, nowFunc: nowFunc}
}

func (b *Basic) Init(authn.Attributes) error {
	if b.users == nil {
		return errors.New("[Basic.Init] no user repository")
	}
	return nil
}

func (b *Basic) IsValidAuthenticationMethod(authn.UsageType, authn.Attributes) (bool, error) {
	return true, nil
}

func (b *Basic) GetAlternativeAuthenticationMethod(authn.UsageType, authn.Attributes) (string, error) {
	return "", nil
}

func (b *Basic) GetCountAuthenticationSteps(authn.Attributes) (int, error) {
	return 1, nil
}

func (b *Basic) Authenticate(_ context.Context, _ authn.Attributes, req *authn.StepRequest) (bool, error) {
	username, password := req.Params[ParamUsername], req.Params[ParamPassword]
	if username == "" || password == "" {
		return false, nil
	}
	user, err := b.users.GetByUsername(username)
	if errors.Is(err, ierrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Basic.Authenticate] user lookup")
	}
	if !user.CanAuthenticate(password) {
		return false, nil
	}
	if err := b.users.SetLastLogin(user.ID, b.nowFunc()); err != nil {
		log.Warn().Err(err).Str("user", user.ID).Msg("failed to record last login")
	}
	req.UserRef = user.ID
	return true, nil
}

func (b *Basic) PrepareForStep(context.Context, authn.Attributes, map[string]string, int) (bool, error) {
	return true, nil
}

func (b *Basic) GetExtraParametersForStep(authn.Attributes, int) ([]string, error) {
	return nil, nil
}

func (b *Basic) GetPageForStep(attrs authn.Attributes, _ int) (string, error) {
	if page := attrs[attrLoginPage]; page != "" {
		return page, nil
	}
	return defaultPage, nil
}

func (b *Basic) Logout(context.Context, authn.Attributes, map[string]string) (bool, error) {
	return true, nil
}

func (b *Basic) GetAPIVersion() int {
	return 3
}
