// Package configsource defines how decorator configuration is pulled from a
// backing store and how staleness of that store is signalled.
package configsource

import (
	"context"
	"sync"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

// Source is the contract the resolver consumes.
//
// NeedsReload is cheap and may be called on every request. Load may be
// expensive; it never returns nil and never fails: when the store cannot be
// read the previously held set is returned.
type Source interface {
	NeedsReload() bool
	Load(ctx context.Context) *decoratorconfig.Set
}

// Store fetches raw records from a backing store.
type Store interface {
	Fetch(ctx context.Context) ([]decoratorconfig.Record, error)
}

type StoreFunc func(ctx context.Context) ([]decoratorconfig.Record, error)

func (f StoreFunc) Fetch(ctx context.Context) ([]decoratorconfig.Record, error) { return f(ctx) }

// Staleness is the "configuration changed" flag shared between whatever
// observes the store (file watcher, KV watcher, admin endpoint) and the
// loader that consumes it.
type Staleness struct {
	mu    sync.Mutex
	stale bool
}

func NewStaleness() *Staleness { return &Staleness{} }

func (s *Staleness) Set() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// TestAndClear reports whether the flag was set and clears it.
func (s *Staleness) TestAndClear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.stale
	s.stale = false
	return was
}

func (s *Staleness) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}
