package plugins

import (
	"context"

	"github.com/pkg/errors"

	"github.com/JanssenProject/jans-sub021/authn"
)

const attrTarget = "target"

// Forward never authenticates by itself. When its target attribute is set it reports
// itself invalid and names the target as the alternative, which retires an acr in favor
// of another without changing clients.
type Forward struct{}

var _ authn.Plugin = (*Forward)(nil)

func (f *Forward) Init(authn.Attributes) error {
	return nil
}

func (f *Forward) IsValidAuthenticationMethod(_ authn.UsageType, attrs authn.Attributes) (bool, error) {
	return attrs[attrTarget] == "", nil
}

func (f *Forward) GetAlternativeAuthenticationMethod(_ authn.UsageType, attrs authn.Attributes) (string, error) {
	return attrs[attrTarget], nil
}

func (f *Forward) GetCountAuthenticationSteps(authn.Attributes) (int, error) {
	return 1, nil
}

func (f *Forward) Authenticate(context.Context, authn.Attributes, *authn.StepRequest) (bool, error) {
	return false, errors.New("[Forward.Authenticate] forward authenticator cannot authenticate")
}

func (f *Forward) PrepareForStep(context.Context, authn.Attributes, map[string]string, int) (bool, error) {
	return false, nil
}

func (f *Forward) GetExtraParametersForStep(authn.Attributes, int) ([]string, error) {
	return nil, nil
}

func (f *Forward) GetPageForStep(authn.Attributes, int) (string, error) {
	return "", nil
}

func (f *Forward) Logout(context.Context, authn.Attributes, map[string]string) (bool, error) {
	return true, nil
}

func (f *Forward) GetAPIVersion() int {
	return 3
}
