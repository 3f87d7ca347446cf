package configsource

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var (
	ErrEmptyName = errors.New("configsource: empty source name")
	ErrNilSource = errors.New("configsource: nil source")
	ErrConflict  = errors.New("configsource: a different source is already registered")
)

// Registry is a process-wide directory of named sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

func (r *Registry) Register(name string, src Source) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if src == nil {
		return ErrNilSource
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sources[name]; ok {
		if old == src {
			return nil
		}
		return fmt.Errorf("%w: %q", ErrConflict, name)
	}
	r.sources[name] = src
	return nil
}

// Unregister removes name only if it is still bound to src.
func (r *Registry) Unregister(name string, src Source) {
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sources[name]; ok && old == src {
		delete(r.sources, name)
	}
}

func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[strings.TrimSpace(name)]
	return src, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Module publishes a Loader in a Registry for its lifetime and turns
// reconfiguration events into change notifications.
type Module struct {
	Name     string
	Registry *Registry
	Loader   *Loader
	Logger   *slog.Logger
}

func (m *Module) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Module) Start() error {
	if err := m.Registry.Register(m.Name, m.Loader); err != nil {
		return fmt.Errorf("register source %q: %w", m.Name, err)
	}
	m.logger().Info("decorator configuration source registered", "name", m.Name)
	return nil
}

// Reconfigure marks the configuration as changed.
func (m *Module) Reconfigure() {
	m.logger().Debug("reconfiguring decorator module", "name", m.Name)
	m.Loader.Changes().Set()
}

func (m *Module) Shutdown() {
	m.Registry.Unregister(m.Name, m.Loader)
	m.logger().Info("decorator configuration source unregistered", "name", m.Name)
}
