package configsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

type fakeStore struct {
	records atomic.Pointer[[]decoratorconfig.Record]
	err     atomic.Pointer[error]
	fetches atomic.Int32
}

func (s *fakeStore) set(records ...decoratorconfig.Record) { s.records.Store(&records) }

func (s *fakeStore) fail(err error) { s.err.Store(&err) }

func (s *fakeStore) Fetch(context.Context) ([]decoratorconfig.Record, error) {
	s.fetches.Add(1)
	if p := s.err.Load(); p != nil && *p != nil {
		return nil, *p
	}
	if p := s.records.Load(); p != nil {
		return *p, nil
	}
	return nil, nil
}

func siteRecord(host, path string) decoratorconfig.Record {
	return decoratorconfig.Record{Name: host, Hostnames: []string{host}, ContextPaths: []string{path}}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLoader(store Store, clock *fakeClock) *Loader {
	return NewLoader(store, LoaderOptions{
		Logger:       slog.New(slog.DiscardHandler),
		RetryBackoff: time.Second,
		now:          clock.now,
	})
}

func TestLoader_FirstLoadAndChangeNotification(t *testing.T) {
	store := &fakeStore{}
	store.set(siteRecord(`a\.example\.com`, "/site-a"))
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := newTestLoader(store, clock)

	require.True(t, l.NeedsReload())
	require.True(t, l.LastLoad().IsZero())

	set := l.Load(context.Background())
	require.Equal(t, 1, set.Len())
	require.Equal(t, uint64(1), set.Generation())
	require.Equal(t, clock.t, l.LastLoad())
	require.False(t, l.NeedsReload())

	// clean loader serves the held set without fetching
	require.Same(t, set, l.Load(context.Background()))
	require.Equal(t, int32(1), store.fetches.Load())

	store.set(siteRecord(`a\.example\.com`, "/site-a"), siteRecord(`b\.example\.com`, "/site-b"))
	l.Changes().Set()
	require.True(t, l.NeedsReload())
	require.False(t, l.Changes().IsSet())

	set2 := l.Load(context.Background())
	require.Equal(t, 2, set2.Len())
	require.Equal(t, uint64(2), set2.Generation())
	require.Same(t, set2, l.Current())
}

func TestLoader_FailureKeepsPreviousSetAndBacksOff(t *testing.T) {
	store := &fakeStore{}
	store.set(siteRecord(`a\.example\.com`, "/site-a"))
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var lastErr error
	l := NewLoader(store, LoaderOptions{
		Logger:       slog.New(slog.DiscardHandler),
		RetryBackoff: time.Second,
		OnLoad:       func(_ decoratorconfig.LoadResult, err error) { lastErr = err },
		now:          clock.now,
	})

	good := l.Load(context.Background())
	require.Equal(t, 1, good.Len())

	boom := errors.New("repository unavailable")
	store.fail(boom)
	l.Changes().Set()
	require.True(t, l.NeedsReload())
	require.Same(t, good, l.Load(context.Background()))
	require.ErrorIs(t, lastErr, boom)

	// still dirty, but backing off
	require.False(t, l.NeedsReload())
	require.Same(t, good, l.Load(context.Background()))
	require.Equal(t, int32(2), store.fetches.Load())

	clock.advance(2 * time.Second)
	store.fail(nil)
	require.True(t, l.NeedsReload())
	require.Equal(t, uint64(2), l.Load(context.Background()).Generation())
	require.False(t, l.NeedsReload())
}

func TestLoader_FetchTimeoutFailsFast(t *testing.T) {
	store := StoreFunc(func(ctx context.Context) ([]decoratorconfig.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	l := NewLoader(store, LoaderOptions{
		Logger:       slog.New(slog.DiscardHandler),
		FetchTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	set := l.Load(context.Background())
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, 0, set.Len())
	require.Same(t, decoratorconfig.EmptySet(), set)
}

func TestStaleness(t *testing.T) {
	s := NewStaleness()
	require.False(t, s.IsSet())
	require.False(t, s.TestAndClear())
	s.Set()
	s.Set()
	require.True(t, s.IsSet())
	require.True(t, s.TestAndClear())
	require.False(t, s.TestAndClear())
}

func TestLoader_ChangeDuringFetchIsNotLost(t *testing.T) {
	var version atomic.Int32
	version.Store(1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var block atomic.Bool
	store := StoreFunc(func(ctx context.Context) ([]decoratorconfig.Record, error) {
		path := fmt.Sprintf("/v%d", version.Load())
		if block.Load() {
			started <- struct{}{}
			<-release
		}
		return []decoratorconfig.Record{siteRecord(`a\.example\.com`, path)}, nil
	})
	l := NewLoader(store, LoaderOptions{Logger: slog.New(slog.DiscardHandler), FetchTimeout: 10 * time.Second})
	require.Equal(t, "/v1", l.Load(context.Background()).Match("a.example.com").ContextPath())

	version.Store(2)
	block.Store(true)
	l.Changes().Set()
	require.True(t, l.NeedsReload())

	done := make(chan *decoratorconfig.Set)
	go func() { done <- l.Load(context.Background()) }()
	<-started

	// second change arrives after the in-flight fetch read v2
	block.Store(false)
	version.Store(3)
	l.Changes().Set()
	require.True(t, l.NeedsReload())

	close(release)
	require.Equal(t, "/v2", (<-done).Match("a.example.com").ContextPath())

	require.True(t, l.NeedsReload())
	require.Equal(t, "/v3", l.Load(context.Background()).Match("a.example.com").ContextPath())
	require.False(t, l.NeedsReload())
}
