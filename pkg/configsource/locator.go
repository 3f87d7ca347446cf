package configsource

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotAvailable means the host runtime has not made a source available yet.
var ErrNotAvailable = errors.New("configsource: source not available yet")

// Locator discovers the Source of the hosting environment. Until it succeeds
// the resolver makes no decoration decisions.
type Locator interface {
	Locate(ctx context.Context) (Source, error)
}

type LocatorFunc func(ctx context.Context) (Source, error)

func (f LocatorFunc) Locate(ctx context.Context) (Source, error) { return f(ctx) }

// StaticLocator always yields the same source.
type StaticLocator struct {
	Source Source
}

func (l StaticLocator) Locate(context.Context) (Source, error) {
	if l.Source == nil {
		return nil, ErrNotAvailable
	}
	return l.Source, nil
}

// RegistryLocator looks a source up by name in a Registry, for environments
// where a separately started module publishes the source.
type RegistryLocator struct {
	Registry *Registry
	Name     string
}

func (l RegistryLocator) Locate(context.Context) (Source, error) {
	if l.Registry == nil {
		return nil, ErrNotAvailable
	}
	src, ok := l.Registry.Lookup(l.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q not registered", ErrNotAvailable, l.Name)
	}
	return src, nil
}
