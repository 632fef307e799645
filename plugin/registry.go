package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/recenthistory/errors"
)

// Registry holds the plugins attached to one scheduler.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]SchedulerPlugin
	version string // recenthistory version
}

// NewRegistry creates an empty registry for a host running version.
func NewRegistry(version string) *Registry {
	return &Registry{
		plugins: make(map[string]SchedulerPlugin),
		version: version,
	}
}

// Register adds a plugin under its metadata name.
// Returns error if the name conflicts or the host version is incompatible.
func (r *Registry) Register(p SchedulerPlugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata := p.Metadata()
	if metadata.Name == "" {
		return errors.NewInvalidRequestError("plugin has no name")
	}
	if _, exists := r.plugins[metadata.Name]; exists {
		return errors.Newf("plugin already registered: %s", metadata.Name)
	}
	if err := r.validateVersion(metadata); err != nil {
		return errors.Wrapf(err, "version incompatible for %s", metadata.Name)
	}

	r.plugins[metadata.Name] = p
	return nil
}

// Get retrieves a plugin by name
func (r *Registry) Get(name string) (SchedulerPlugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// List returns all registered plugin names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// States reports the lifecycle state of every plugin.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]State, len(r.plugins))
	for name, p := range r.plugins {
		states[name] = p.State()
	}
	return states
}

// snapshot returns plugins ordered by name.
func (r *Registry) snapshot() []SchedulerPlugin {
	names := r.List()
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SchedulerPlugin, 0, len(names))
	for _, name := range names {
		if p, ok := r.plugins[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// InitializeAll initializes plugins in name order, stopping at the first error.
func (r *Registry) InitializeAll(ctx context.Context, host Host) error {
	for _, p := range r.snapshot() {
		name := p.Metadata().Name
		if err := p.Initialize(ctx, name, host); err != nil {
			return errors.Wrapf(err, "failed to initialize plugin %s", name)
		}
	}
	return nil
}

// StartAll starts plugins in name order, stopping at the first error.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, p := range r.snapshot() {
		if err := p.Start(ctx); err != nil {
			return errors.Wrapf(err, "failed to start plugin %s", p.Metadata().Name)
		}
	}
	return nil
}

// ShutdownAll shuts plugins down in reverse name order. Every plugin is
// asked even when an earlier one fails.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	plugins := r.snapshot()

	var errs []error
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to shutdown plugin %s", p.Metadata().Name))
		}
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	err := errs[0]
	for _, other := range errs[1:] {
		err = errors.WithSecondaryError(err, other)
	}
	return errors.Wrapf(err, "%d plugins failed to shut down", len(errs))
}

// validateVersion checks the plugin's HostVersion constraint. Development
// builds accept every plugin.
func (r *Registry) validateVersion(metadata Metadata) error {
	if metadata.HostVersion == "" || r.version == "" || r.version == "dev" {
		return nil
	}

	hostVer, err := semver.NewVersion(r.version)
	if err != nil {
		return errors.Wrapf(err, "invalid host version %s", r.version)
	}

	constraint, err := semver.NewConstraint(metadata.HostVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", metadata.HostVersion)
	}

	if !constraint.Check(hostVer) {
		return errors.Newf("plugin requires recenthistory %s, but running %s", metadata.HostVersion, r.version)
	}
	return nil
}
