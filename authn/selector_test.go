package authn_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JanssenProject/jans-sub021/authn"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
)

// fakePlugin is configured through its attributes.
type fakePlugin struct {
	apiVersion int
	inits      *atomic.Int32
	panics     bool
}

func (p *fakePlugin) Init(attrs authn.Attributes) error {
	p.inits.Add(1)
	if attrs["fail_init"] == "true" {
		return errors.New("init failed")
	}
	if attrs["panic_init"] == "true" {
		panic("init exploded")
	}
	return nil
}

func (p *fakePlugin) IsValidAuthenticationMethod(_ authn.UsageType, attrs authn.Attributes) (bool, error) {
	if p.panics {
		panic("boom")
	}
	return attrs["valid"] != "false", nil
}

func (p *fakePlugin) GetAlternativeAuthenticationMethod(_ authn.UsageType, attrs authn.Attributes) (string, error) {
	if p.panics {
		panic("boom")
	}
	return attrs["alternative"], nil
}

func (p *fakePlugin) GetCountAuthenticationSteps(authn.Attributes) (int, error) {
	if p.panics {
		panic("boom")
	}
	return 2, nil
}

func (p *fakePlugin) Authenticate(_ context.Context, _ authn.Attributes, req *authn.StepRequest) (bool, error) {
	if p.panics {
		panic("boom")
	}
	if req.Params["fail"] == "true" {
		return false, errors.New("backend down")
	}
	req.UserRef = "user-1"
	return true, nil
}

func (p *fakePlugin) PrepareForStep(context.Context, authn.Attributes, map[string]string, int) (bool, error) {
	if p.panics {
		panic("boom")
	}
	return true, nil
}

func (p *fakePlugin) GetExtraParametersForStep(authn.Attributes, int) ([]string, error) {
	if p.panics {
		panic("boom")
	}
	return []string{"otp"}, nil
}

func (p *fakePlugin) GetPageForStep(_ authn.Attributes, step int) (string, error) {
	if p.panics {
		panic("boom")
	}
	if step == 2 {
		return "/otp", nil
	}
	return "/login", nil
}

func (p *fakePlugin) Logout(context.Context, authn.Attributes, map[string]string) (bool, error) {
	if p.panics {
		panic("boom")
	}
	return true, nil
}

func (p *fakePlugin) GetAPIVersion() int {
	return p.apiVersion
}

func (p *fakePlugin) GetNextStep(_ authn.Attributes, _ map[string]string, step int) (int, error) {
	if p.panics {
		panic("boom")
	}
	return step + 1, nil
}

type testFixture struct {
	selector *authn.Selector
	inits    *atomic.Int32
}

func setupTestFixture(t *testing.T, options ...authn.SelectorOption) *testFixture {
	t.Helper()
	inits := &atomic.Int32{}
	factories := authn.Factories{
		"fake":   func() authn.Plugin { return &fakePlugin{apiVersion: 3, inits: inits} },
		"legacy": func() authn.Plugin { return &fakePlugin{apiVersion: 2, inits: inits} },
		"broken": func() authn.Plugin { return &fakePlugin{apiVersion: 3, inits: inits, panics: true} },
	}
	return &testFixture{
		selector: authn.NewSelector(factories, options...),
		inits:    inits,
	}
}

func def(name string, level, priority int, usage authn.UsageType) authn.Definition {
	return authn.Definition{
		Name:      name,
		Type:      "fake",
		Version:   1,
		Level:     level,
		Priority:  priority,
		UsageType: string(usage),
		Enabled:   true,
	}
}

// Scenario: equal levels resolve to the lowest priority as the default.
func TestDefaultTieBreak(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		def("Y", 10, 5, authn.UsageInteractive),
		def("X", 10, 1, authn.UsageInteractive),
	}))

	c, err := f.selector.SelectForStep(authn.UsageInteractive, 1, "", "")
	require.NoError(t, err)
	require.Equal(t, "X", c.Name)
}

func TestDefaultPrefersLowestLevel(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		def("strong", 50, 1, authn.UsageInteractive),
		def("weak", 10, 9, authn.UsageInteractive),
		def("same-a", 20, 3, authn.UsageInteractive),
	}))

	c, err := f.selector.Default(authn.UsageInteractive)
	require.NoError(t, err)
	require.Equal(t, "weak", c.Name)

	names := []string{}
	for _, c := range f.selector.Configurations(authn.UsageInteractive) {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"weak", "same-a", "strong"}, names)
}

func TestBothJoinsEveryUsage(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		def("everywhere", 10, 1, authn.UsageBoth),
		def("service-only", 5, 1, authn.UsageService),
	}))

	for _, usage := range []authn.UsageType{authn.UsageInteractive, authn.UsageLogout} {
		c, err := f.selector.Default(usage)
		require.NoError(t, err)
		require.Equal(t, "everywhere", c.Name)
	}
	c, err := f.selector.Default(authn.UsageService)
	require.NoError(t, err)
	require.Equal(t, "service-only", c.Name)
}

func TestSelectForStep(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	otp := def("otp", 20, 1, authn.UsageInteractive)
	otp.Aliases = []string{"urn:acr:otp"}
	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		def("basic", 10, 1, authn.UsageInteractive),
		otp,
		def("fido", 30, 2, authn.UsageInteractive),
		def("fido-backup", 30, 7, authn.UsageInteractive),
	}))

	tests := []struct {
		name     string
		step     int
		acr      string
		authMode string
		want     string
		wantErr  bool
	}{
		{name: "default", step: 1, want: "basic"},
		{name: "auth mode case insensitive", step: 1, authMode: "OTP", want: "otp"},
		{name: "auth mode wins over acr", step: 1, acr: "fido", authMode: "basic", want: "basic"},
		{name: "unknown auth mode", step: 1, authMode: "nope", wantErr: true},
		{name: "acr by name", step: 1, acr: "fido", want: "fido"},
		{name: "acr by alias", step: 1, acr: "urn:acr:otp", want: "otp"},
		{name: "acr first match in order", step: 1, acr: "unknown otp fido", want: "otp"},
		{name: "acr by level with priority tie-break", step: 1, acr: "30", want: "fido"},
		{name: "unknown acr fails closed", step: 1, acr: "unknown", wantErr: true},
		{name: "unmatched level fails closed", step: 1, acr: "50", wantErr: true},
		{name: "later step pinned", step: 2, acr: "basic", authMode: "fido", want: "fido"},
		{name: "later step without pin", step: 2, acr: "basic", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.selector.SelectForStep(authn.UsageInteractive, tt.step, tt.acr, tt.authMode)
			if tt.wantErr {
				require.ErrorIs(t, err, ierrors.ErrNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, c.Name)
		})
	}
}

func TestUseHighestLevelIfAcrNotFound(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t, authn.WithUseHighestLevelIfAcrNotFound(true))

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		def("basic", 10, 1, authn.UsageInteractive),
		def("fido", 30, 2, authn.UsageInteractive),
	}))

	c, err := f.selector.SelectForStep(authn.UsageInteractive, 1, "unknown", "")
	require.NoError(t, err)
	require.Equal(t, "fido", c.Name)

	c, err = f.selector.SelectForStep(authn.UsageInteractive, 1, "", "")
	require.NoError(t, err)
	require.Equal(t, "basic", c.Name)
}

func TestEmptyRegistry(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.selector.SelectForStep(authn.UsageInteractive, 1, "", "")
	require.ErrorIs(t, err, ierrors.ErrNotFound)
}

// Scenario: an invalid plugin is replaced by its alternative, and an unresolvable
// alternative fails selection.
func TestReconcileForWorkflow(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	retired := def("retired", 10, 1, authn.UsageInteractive)
	retired.Attributes = map[string]string{"valid": "false", "alternative": "Y"}
	dangling := def("dangling", 10, 2, authn.UsageInteractive)
	dangling.Attributes = map[string]string{"valid": "false", "alternative": "missing"}
	silent := def("silent", 10, 3, authn.UsageInteractive)
	silent.Attributes = map[string]string{"valid": "false"}
	legacy := def("legacy", 10, 4, authn.UsageInteractive)
	legacy.Type = "legacy"
	legacy.Attributes = map[string]string{"valid": "false"}

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		retired, dangling, silent, legacy,
		def("Y", 20, 1, authn.UsageInteractive),
	}))

	cfg, err := f.selector.ByName(authn.UsageInteractive, "retired")
	require.NoError(t, err)
	got, err := f.selector.ReconcileForWorkflow(ctx, authn.UsageInteractive, cfg)
	require.NoError(t, err)
	require.Equal(t, "Y", got.Name)

	for _, name := range []string{"dangling", "silent"} {
		cfg, err := f.selector.ByName(authn.UsageInteractive, name)
		require.NoError(t, err)
		_, err = f.selector.ReconcileForWorkflow(ctx, authn.UsageInteractive, cfg)
		require.ErrorIs(t, err, ierrors.ErrNotFound)
	}

	cfg, err = f.selector.ByName(authn.UsageInteractive, "legacy")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.APIVersion)
	got, err = f.selector.ReconcileForWorkflow(ctx, authn.UsageInteractive, cfg)
	require.NoError(t, err)
	require.Equal(t, "legacy", got.Name, "plugins without validity hooks are always valid")
}

func TestReloadReusesUnchangedPlugins(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	defs := []authn.Definition{
		def("basic", 10, 1, authn.UsageInteractive),
		def("otp", 20, 1, authn.UsageInteractive),
	}
	require.NoError(t, f.selector.Reload(ctx, defs))
	require.EqualValues(t, 2, f.inits.Load())
	before, err := f.selector.ByName(authn.UsageInteractive, "basic")
	require.NoError(t, err)

	defs[0].Priority = 9
	defs[1].Version = 2
	require.NoError(t, f.selector.Reload(ctx, defs))
	require.EqualValues(t, 3, f.inits.Load(), "only the changed version is re-initialized")

	after, err := f.selector.ByName(authn.UsageInteractive, "BASIC")
	require.NoError(t, err)
	require.Same(t, before.Plugin, after.Plugin)
	require.Equal(t, 9, after.Priority)

	require.NoError(t, f.selector.Reload(ctx, defs[:1]))
	_, err = f.selector.ByName(authn.UsageInteractive, "otp")
	require.ErrorIs(t, err, ierrors.ErrNotFound)
}

func TestReloadDropsFailingDefinitions(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	failing := def("failing", 1, 1, authn.UsageInteractive)
	failing.Attributes = map[string]string{"fail_init": "true"}
	panicking := def("panicking", 1, 1, authn.UsageInteractive)
	panicking.Attributes = map[string]string{"panic_init": "true"}
	unknown := def("unknown", 1, 1, authn.UsageInteractive)
	unknown.Type = "nope"
	disabled := def("disabled", 1, 1, authn.UsageInteractive)
	disabled.Enabled = false

	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{
		failing, panicking, unknown, disabled,
		def("basic", 10, 1, authn.UsageInteractive),
		def("BASIC", 1, 1, authn.UsageInteractive),
	}))

	configs := f.selector.Configurations(authn.UsageInteractive)
	require.Len(t, configs, 1)
	require.Equal(t, "basic", configs[0].Name)
	require.Equal(t, 10, configs[0].Level)
}

func TestPanickingPluginIsContained(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	broken := def("broken", 10, 1, authn.UsageInteractive)
	broken.Type = "broken"
	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{broken}))

	cfg, err := f.selector.ByName(authn.UsageInteractive, "broken")
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.False(t, f.selector.ExecuteAuthenticate(ctx, cfg, &authn.StepRequest{Step: 1}))
		require.False(t, f.selector.ExecutePrepareForStep(ctx, cfg, nil, 1))
		require.Equal(t, -1, f.selector.ExecuteStepCount(cfg))
		require.Empty(t, f.selector.ExecuteExtraParameters(cfg, 1))
		require.Empty(t, f.selector.ExecutePageForStep(cfg, 1))
		require.False(t, f.selector.ExecuteLogout(ctx, cfg, nil))
		require.Equal(t, -1, f.selector.ExecuteNextStep(cfg, nil, 1))
		require.Empty(t, f.selector.ExecuteLogoutURL(cfg, nil))

		_, err := f.selector.ReconcileForWorkflow(ctx, authn.UsageInteractive, cfg)
		require.ErrorIs(t, err, ierrors.ErrNotFound)
	})
}

func TestExecuteWrappers(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)
	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{def("basic", 10, 1, authn.UsageInteractive)}))

	cfg, err := f.selector.ByName(authn.UsageInteractive, "basic")
	require.NoError(t, err)

	req := &authn.StepRequest{Step: 1, Params: map[string]string{}}
	require.True(t, f.selector.ExecuteAuthenticate(ctx, cfg, req))
	require.Equal(t, "user-1", req.UserRef)

	require.False(t, f.selector.ExecuteAuthenticate(ctx, cfg, &authn.StepRequest{Step: 1, Params: map[string]string{"fail": "true"}}))
	require.Equal(t, 2, f.selector.ExecuteStepCount(cfg))
	require.Equal(t, []string{"otp"}, f.selector.ExecuteExtraParameters(cfg, 2))
	require.Equal(t, "/otp", f.selector.ExecutePageForStep(cfg, 2))
	require.Equal(t, 3, f.selector.ExecuteNextStep(cfg, nil, 2))
	require.Empty(t, f.selector.ExecuteLogoutURL(cfg, nil), "plugin has no external logout")
}

func TestAcrMappings(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	otp := def("otp", 20, 1, authn.UsageInteractive)
	otp.Aliases = []string{"urn:acr:otp"}
	require.NoError(t, f.selector.Reload(ctx, []authn.Definition{def("basic", 10, 1, authn.UsageInteractive), otp}))

	require.Equal(t, map[string]int{"basic": 10, "otp": 20, "urn:acr:otp": 20}, f.selector.AcrToLevel())

	acr, ok := f.selector.LevelToAcr(20)
	require.True(t, ok)
	require.Equal(t, "otp", acr)
	_, ok = f.selector.LevelToAcr(99)
	require.False(t, ok)

	require.True(t, f.selector.IsEnabled("urn:acr:otp"))
	require.True(t, f.selector.IsEnabled("BASIC"))
	require.False(t, f.selector.IsEnabled("fido"))
}

type staticSource []authn.Definition

func (s staticSource) LoadAuthenticatorDefinitions() ([]authn.Definition, error) {
	return s, nil
}

func TestReloadFrom(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.selector.ReloadFrom(context.Background(), staticSource{def("basic", 10, 1, authn.UsageInteractive)}))
	_, err := f.selector.Default(authn.UsageInteractive)
	require.NoError(t, err)
}
