package authn

import (
	"sort"
	"strings"
)

// Configuration is one installed, initialized authenticator.
type Configuration struct {
	Name       string
	Type       string
	Version    int
	Level      int
	Priority   int
	UsageType  UsageType
	Aliases    []string
	Attributes Attributes
	Plugin     Plugin
	APIVersion int
}

// ID is the case-insensitive identity of the configuration.
func (c *Configuration) ID() string {
	return strings.ToLower(c.Name)
}

// Matches reports whether acr names this configuration or one of its aliases.
func (c *Configuration) Matches(acr string) bool {
	if strings.EqualFold(c.Name, acr) {
		return true
	}
	for _, alias := range c.Aliases {
		if strings.EqualFold(alias, acr) {
			return true
		}
	}
	return false
}

// usages lists the groups the configuration belongs to.
func (c *Configuration) usages() []UsageType {
	if c.UsageType == UsageBoth {
		return []UsageType{UsageInteractive, UsageService, UsageLogout}
	}
	return []UsageType{c.UsageType}
}

// less orders by lowest level, then lowest priority, then name.
func less(a, b *Configuration) bool {
	if a.Level != b.Level {
		return a.Level < b.Level
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID() < b.ID()
}

// registry is an immutable snapshot of the installed configurations.
type registry struct {
	byID    map[string]*Configuration
	byUsage map[UsageType][]*Configuration
}

func newRegistry(configs []*Configuration) *registry {
	r := &registry{
		byID:    make(map[string]*Configuration, len(configs)),
		byUsage: make(map[UsageType][]*Configuration),
	}
	for _, c := range configs {
		r.byID[c.ID()] = c
		for _, u := range c.usages() {
			r.byUsage[u] = append(r.byUsage[u], c)
		}
	}
	for _, group := range r.byUsage {
		sort.Slice(group, func(i, j int) bool { return less(group[i], group[j]) })
	}
	return r
}

// defaultFor is the lowest level, lowest priority configuration of usage.
func (r *registry) defaultFor(usage UsageType) *Configuration {
	if group := r.byUsage[usage]; len(group) > 0 {
		return group[0]
	}
	return nil
}

func (r *registry) byName(usage UsageType, name string) *Configuration {
	for _, c := range r.byUsage[usage] {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// byAcr resolves acr as a name or alias, then as a numeric level.
func (r *registry) byAcr(usage UsageType, acr string, level int, numeric bool) *Configuration {
	group := r.byUsage[usage]
	for _, c := range group {
		if c.Matches(acr) {
			return c
		}
	}
	if !numeric {
		return nil
	}
	for _, c := range group {
		if c.Level == level {
			return c
		}
	}
	return nil
}

func (r *registry) highest(usage UsageType) *Configuration {
	group := r.byUsage[usage]
	if len(group) == 0 {
		return nil
	}
	best := group[0]
	for _, c := range group[1:] {
		if c.Level > best.Level {
			best = c
		}
	}
	return best
}
