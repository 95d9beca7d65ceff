package authn

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/JanssenProject/jans-sub021/internal/config"
	ierrors "github.com/JanssenProject/jans-sub021/internal/errors"
	"github.com/JanssenProject/jans-sub021/internal/logging"
)

// Definition is an authenticator as configured.
type Definition = config.AuthenticatorDefinition

// DefinitionSource supplies the current authenticator definitions.
type DefinitionSource interface {
	LoadAuthenticatorDefinitions() ([]Definition, error)
}

// validationAPIVersion is the first plugin API version with the validity hooks.
const validationAPIVersion = 3

// Selector resolves the authenticator for a step. Reload builds a new registry and
// swaps it in, readers never see a partial one.
type Selector struct {
	factories  Factories
	useHighest bool
	logger     zerolog.Logger

	reloadLock sync.Mutex
	current    atomic.Pointer[registry]
}

// SelectorOption defines a function type to modify the Selector instance.
type SelectorOption func(*Selector)

// WithLogger sets the logger used by the selector and plugin wrappers.
func WithLogger(logger zerolog.Logger) SelectorOption {
	return func(s *Selector) {
		s.logger = logger
	}
}

// WithUseHighestLevelIfAcrNotFound selects the highest level authenticator instead of
// the default when none of the requested acr values resolve.
func WithUseHighestLevelIfAcrNotFound(enabled bool) SelectorOption {
	return func(s *Selector) {
		s.useHighest = enabled
	}
}

func NewSelector(factories Factories, options ...SelectorOption) *Selector {
	s := &Selector{
		factories: factories,
		logger:    logging.Component("authn"),
	}
	for _, opt := range options {
		opt(s)
	}
	s.current.Store(newRegistry(nil))
	return s
}

func (s *Selector) registry() *registry {
	return s.current.Load()
}

// Reload installs defs. Plugins whose (name, version) is unchanged are reused,
// others are created and initialized. A definition whose plugin cannot be created or
// initialized is dropped.
func (s *Selector) Reload(_ context.Context, defs []Definition) error {
	s.reloadLock.Lock()
	defer s.reloadLock.Unlock()

	old := s.registry()
	seen := make(map[string]struct{}, len(defs))
	configs := make([]*Configuration, 0, len(defs))
	for _, def := range defs {
		if !def.Enabled {
			continue
		}
		id := strings.ToLower(def.Name)
		if id == "" {
			s.logger.Warn().Str("type", def.Type).Msg("skipping authenticator without a name")
			continue
		}
		if _, dup := seen[id]; dup {
			s.logger.Warn().Str("name", def.Name).Msg("skipping duplicate authenticator definition")
			continue
		}
		seen[id] = struct{}{}

		cfg := &Configuration{
			Name:       def.Name,
			Type:       def.Type,
			Version:    def.Version,
			Level:      def.Level,
			Priority:   def.Priority,
			UsageType:  ParseUsageType(def.UsageType),
			Aliases:    def.Aliases,
			Attributes: Attributes(def.Attributes),
		}
		if cfg.Attributes == nil {
			cfg.Attributes = Attributes{}
		}

		if prev, ok := old.byID[id]; ok && prev.Version == def.Version && prev.Type == def.Type {
			cfg.Plugin = prev.Plugin
			cfg.APIVersion = prev.APIVersion
			configs = append(configs, cfg)
			continue
		}

		plugin, err := s.initPlugin(cfg)
		if err != nil {
			s.logger.Err(err).Str("name", def.Name).Int("version", def.Version).Msg("authenticator dropped")
			continue
		}
		cfg.Plugin = plugin
		cfg.APIVersion = s.apiVersion(cfg)
		configs = append(configs, cfg)
	}

	s.current.Store(newRegistry(configs))
	s.logger.Info().Int("count", len(configs)).Msg("authenticators reloaded")
	return nil
}

// ReloadFrom loads the definitions from source and installs them.
func (s *Selector) ReloadFrom(ctx context.Context, source DefinitionSource) error {
	defs, err := source.LoadAuthenticatorDefinitions()
	if err != nil {
		return errors.Wrap(err, "[Selector.ReloadFrom]")
	}
	return s.Reload(ctx, defs)
}

func (s *Selector) initPlugin(cfg *Configuration) (plugin Plugin, err error) {
	factory, ok := s.factories[cfg.Type]
	if !ok {
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.initPlugin] plugin type %q", cfg.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			plugin = nil
			err = errors.Wrapf(ierrors.ErrPluginFailure, "[Selector.initPlugin] panic: %v", r)
		}
	}()
	plugin = factory()
	if err := plugin.Init(cfg.Attributes); err != nil {
		return nil, errors.Wrapf(ierrors.ErrPluginFailure, "[Selector.initPlugin] init: %v", err)
	}
	return plugin, nil
}

func (s *Selector) apiVersion(cfg *Configuration) int {
	return safeCall(s, cfg, "GetAPIVersion", 1, func() (int, error) {
		return cfg.Plugin.GetAPIVersion(), nil
	})
}

// SelectForStep picks the configuration for step. Step 1 resolves authMode by name,
// else each acr value in order by name, alias or level. Requested acr values that
// match nothing fail with ErrNotFound unless the highest level option is set; the
// default is used only when no acr was requested. Later steps stay on the
// authenticator pinned by authMode.
func (s *Selector) SelectForStep(usage UsageType, step int, acrValues, authMode string) (*Configuration, error) {
	r := s.registry()
	if step > 1 {
		if authMode == "" {
			return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.SelectForStep] step %d without a pinned authenticator", step)
		}
		if c := r.byName(usage, authMode); c != nil {
			return c, nil
		}
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.SelectForStep] authenticator %q", authMode)
	}

	if authMode != "" {
		if c := r.byName(usage, authMode); c != nil {
			return c, nil
		}
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.SelectForStep] auth mode %q", authMode)
	}

	if acrs := strings.Fields(acrValues); len(acrs) > 0 {
		for _, acr := range acrs {
			level, err := strconv.Atoi(acr)
			if c := r.byAcr(usage, acr, level, err == nil); c != nil {
				return c, nil
			}
		}
		if s.useHighest {
			if c := r.highest(usage); c != nil {
				return c, nil
			}
		}
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.SelectForStep] no authenticator for acr_values %q", acrValues)
	}

	if c := r.defaultFor(usage); c != nil {
		return c, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.SelectForStep] no %s authenticator", usage)
}

// ReconcileForWorkflow asks plugins with the validity hooks whether they still apply.
// An invalid plugin is replaced by the alternative it names, resolved among the
// interactive authenticators. Without a resolvable alternative selection fails.
func (s *Selector) ReconcileForWorkflow(_ context.Context, usage UsageType, cfg *Configuration) (*Configuration, error) {
	if cfg == nil {
		return nil, errors.Wrap(ierrors.ErrNotFound, "[Selector.ReconcileForWorkflow] no configuration")
	}
	if cfg.APIVersion < validationAPIVersion {
		return cfg, nil
	}
	if s.ExecuteIsValid(usage, cfg) {
		return cfg, nil
	}

	alt := s.ExecuteAlternative(usage, cfg)
	if alt == "" {
		return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.ReconcileForWorkflow] %s is not valid and offers no alternative", cfg.Name)
	}
	if c := s.registry().byName(UsageInteractive, alt); c != nil {
		s.logger.Debug().Str("from", cfg.Name).Str("to", c.Name).Msg("authenticator replaced by alternative")
		return c, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.ReconcileForWorkflow] alternative %q of %s", alt, cfg.Name)
}

// Default returns the default configuration of usage.
func (s *Selector) Default(usage UsageType) (*Configuration, error) {
	if c := s.registry().defaultFor(usage); c != nil {
		return c, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.Default] no %s authenticator", usage)
}

func (s *Selector) ByName(usage UsageType, name string) (*Configuration, error) {
	if c := s.registry().byName(usage, name); c != nil {
		return c, nil
	}
	return nil, errors.Wrapf(ierrors.ErrNotFound, "[Selector.ByName] %q", name)
}

// Configurations lists usage's configurations in selection order.
func (s *Selector) Configurations(usage UsageType) []*Configuration {
	group := s.registry().byUsage[usage]
	out := make([]*Configuration, len(group))
	copy(out, group)
	return out
}

// AcrToLevel maps every name and alias to its level.
func (s *Selector) AcrToLevel() map[string]int {
	r := s.registry()
	out := make(map[string]int, len(r.byID))
	for _, c := range r.byID {
		out[c.Name] = c.Level
		for _, alias := range c.Aliases {
			out[alias] = c.Level
		}
	}
	return out
}

// LevelToAcr returns the interactive authenticator name for level.
func (s *Selector) LevelToAcr(level int) (string, bool) {
	for _, c := range s.registry().byUsage[UsageInteractive] {
		if c.Level == level {
			return c.Name, true
		}
	}
	return "", false
}

// IsEnabled reports whether acr resolves to an installed authenticator.
func (s *Selector) IsEnabled(acr string) bool {
	for _, c := range s.registry().byID {
		if c.Matches(acr) {
			return true
		}
	}
	return false
}
