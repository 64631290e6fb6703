package lookup

import (
	"fmt"
	"sort"
	"sync"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/drover-labs/drover/pkg/drover/v1/lookup"
)

// StaticRegistry implements the lookup.Registry interface with a map guarded
// by a read/write lock. It is the default registry used when none is injected.
type StaticRegistry struct {
	plugins map[string]lookup.Plugin
	mu      sync.RWMutex
}

// NewStaticRegistry creates an empty registry. Plugins must be registered
// before a playbook referencing them is loaded.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		plugins: make(map[string]lookup.Plugin),
	}
}

// NewDefaultRegistry creates a registry preloaded with the builtin plugins:
// items, env, and fileglob.
func NewDefaultRegistry() *StaticRegistry {
	r := NewStaticRegistry()
	// Registration of builtins cannot collide.
	_ = r.Register("items", &ItemsPlugin{})
	_ = r.Register("env", &EnvPlugin{})
	_ = r.Register("fileglob", &FileglobPlugin{})
	return r
}

// Register associates a plugin name with its implementation. Duplicate names
// and nil plugins are configuration errors.
func (r *StaticRegistry) Register(name string, plugin lookup.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return droverrors.NewConfigError("lookup registration error: name cannot be empty", nil)
	}
	if plugin == nil {
		return droverrors.NewConfigError(fmt.Sprintf("lookup registration error for '%s': plugin cannot be nil", name), nil)
	}
	if _, exists := r.plugins[name]; exists {
		return droverrors.NewConfigError(fmt.Sprintf("lookup registration error: duplicate plugin name '%s'", name), nil)
	}

	r.plugins[name] = plugin
	return nil
}

// Get retrieves a plugin by name, returning PluginNotFoundError when absent.
func (r *StaticRegistry) Get(name string) (lookup.Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plugin, exists := r.plugins[name]
	if !exists {
		return nil, droverrors.NewPluginNotFoundError(name)
	}
	return plugin, nil
}

// List returns the registered plugin names in sorted order.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ lookup.Registry = (*StaticRegistry)(nil)
