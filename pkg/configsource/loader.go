package configsource

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

const (
	DefaultFetchTimeout = 5 * time.Second
	DefaultRetryBackoff = 10 * time.Second
)

type LoaderOptions struct {
	// Changes is set by store watchers. A new flag is created when nil.
	Changes *Staleness
	// FetchTimeout bounds a single Store.Fetch call.
	FetchTimeout time.Duration
	// RetryBackoff is the minimum delay between fetch attempts after a failure.
	RetryBackoff time.Duration
	Logger       *slog.Logger
	// OnLoad is called after every fetch attempt.
	OnLoad func(res decoratorconfig.LoadResult, err error)

	now func() time.Time
}

// Loader is the Source implementation shared by all stores. It starts dirty,
// so the first Load always reads the store.
//
// Every observed change bumps requested; a successful fetch records the value
// of requested it started from. The loader is dirty while the two differ, so a
// change that lands during a fetch survives that fetch.
type Loader struct {
	store   Store
	changes *Staleness
	opts    LoaderOptions
	logger  *slog.Logger

	mu          sync.Mutex
	requested   atomic.Uint64
	fetched     atomic.Uint64
	lastFailure atomic.Int64
	lastLoad    atomic.Int64
	generation  uint64
	current     atomic.Pointer[decoratorconfig.Set]
}

func NewLoader(store Store, opts LoaderOptions) *Loader {
	if opts.Changes == nil {
		opts.Changes = NewStaleness()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	l := &Loader{
		store:   store,
		changes: opts.Changes,
		opts:    opts,
		logger:  opts.Logger,
	}
	l.requested.Store(1)
	l.current.Store(decoratorconfig.EmptySet())
	return l
}

// Changes returns the flag watchers should set when the store changes.
func (l *Loader) Changes() *Staleness { return l.changes }

// NeedsReload consumes a pending change notification and reports whether a
// fetch should be attempted now.
func (l *Loader) NeedsReload() bool {
	l.observeChanges()
	if !l.dirty() {
		return false
	}
	return !l.backingOff(l.opts.now())
}

func (l *Loader) observeChanges() {
	if l.changes.TestAndClear() {
		l.requested.Add(1)
	}
}

func (l *Loader) dirty() bool {
	return l.requested.Load() != l.fetched.Load()
}

func (l *Loader) backingOff(now time.Time) bool {
	lf := l.lastFailure.Load()
	return lf != 0 && now.Sub(time.Unix(0, lf)) < l.opts.RetryBackoff
}

// Load reads the store when the held set is stale and returns the current
// set. Fetch failures are logged and the previous set is kept.
func (l *Loader) Load(ctx context.Context) *decoratorconfig.Set {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.observeChanges()
	now := l.opts.now()
	if !l.dirty() || l.backingOff(now) {
		return l.current.Load()
	}
	target := l.requested.Load()

	l.logger.Debug("loading decorator configuration", "previously_loaded", l.LastLoad())
	fetchCtx, cancel := context.WithTimeout(ctx, l.opts.FetchTimeout)
	records, err := l.store.Fetch(fetchCtx)
	cancel()
	if err != nil {
		l.lastFailure.Store(now.UnixNano())
		l.logger.Error("error loading decorator configuration", "error", err)
		if l.opts.OnLoad != nil {
			l.opts.OnLoad(decoratorconfig.LoadResult{}, err)
		}
		return l.current.Load()
	}

	set, res := decoratorconfig.BuildSet(records, l.logger)
	l.generation++
	set = set.Stamped(l.generation, now)
	l.current.Store(set)
	l.fetched.Store(target)
	l.lastFailure.Store(0)
	l.lastLoad.Store(now.UnixNano())
	l.logger.Info("decorator configuration loaded",
		"generation", l.generation,
		"entries", res.Entries,
		"records", len(res.LoadedRecords),
		"skipped", len(res.SkippedRecords),
		"dropped_patterns", len(res.DroppedPatterns))
	if l.opts.OnLoad != nil {
		l.opts.OnLoad(res, nil)
	}
	return set
}

// Current returns the last successfully loaded set without touching the store.
func (l *Loader) Current() *decoratorconfig.Set { return l.current.Load() }

// LastLoad returns the time of the last successful load, or zero.
func (l *Loader) LastLoad() time.Time {
	v := l.lastLoad.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}
