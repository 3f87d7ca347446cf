// Package resolver decides, per request, which decorator entry applies.
//
// A Resolver starts uninitialized and keeps asking its Locator for a
// configuration source on every request until one is found. Once bound the
// source is used for the lifetime of the Resolver. Decisions are memoized in
// a decoratorcache.Cache that is invalidated after every reload.
package resolver

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorcache"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

type Options struct {
	Locator    configsource.Locator
	Matcher    decoratorconfig.Matcher
	Cache      decoratorcache.Options
	ReloadMode ReloadMode
	// HostHeader is consulted after the host headers of the loaded entries.
	// Defaults to decoratorconfig.DefaultHostHeader.
	HostHeader string
	Logger     *slog.Logger
	// OnReload is called after every reload with the published set.
	OnReload func(set *decoratorconfig.Set)
}

type Stats struct {
	Initialized bool
	Generation  uint64
	Entries     int
	LoadedAt    time.Time
	Resolves    uint64
	Reloads     uint64
	Panics      uint64
	Cache       decoratorcache.Stats
}

type snapshot struct {
	set     *decoratorconfig.Set
	headers []string
}

type boundSource struct {
	src configsource.Source
}

type Resolver struct {
	opts    Options
	logger  *slog.Logger
	matcher decoratorconfig.Matcher
	cache   *decoratorcache.Cache

	mu       sync.Mutex
	bound    atomic.Pointer[boundSource]
	current  atomic.Pointer[snapshot]
	reloader reloader

	resolves atomic.Uint64
	reloads  atomic.Uint64
	panics   atomic.Uint64

	closeOnce sync.Once
}

func New(opts Options) *Resolver {
	if opts.Matcher == nil {
		opts.Matcher = decoratorconfig.FirstMatch
	}
	if opts.HostHeader == "" {
		opts.HostHeader = decoratorconfig.DefaultHostHeader
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Locator == nil {
		opts.Locator = configsource.StaticLocator{}
	}
	r := &Resolver{
		opts:    opts,
		logger:  opts.Logger,
		matcher: opts.Matcher,
	}
	r.cache = decoratorcache.New(r.compute, opts.Cache)
	r.publish(decoratorconfig.EmptySet())
	if opts.ReloadMode == ReloadBackground {
		r.reloader = newBackgroundReloader(r)
	} else {
		r.reloader = syncReloader{r: r}
	}
	return r
}

// Resolve returns the entry for req, or decoratorconfig.InvalidEntry when
// nothing applies or no configuration is available yet. It never panics.
func (r *Resolver) Resolve(req decoration.Request) (entry *decoratorconfig.Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("panic resolving decorator", "panic", p)
			entry = decoratorconfig.InvalidEntry
		}
	}()
	r.resolves.Add(1)
	if req == nil || !r.ensureFresh() {
		return decoratorconfig.InvalidEntry
	}

	host, header := decoration.ResolveHost(req, r.current.Load().headers...)
	if header != "" {
		r.logger.Debug("resolved host from header", "header", header, "host", host)
	} else {
		r.logger.Debug("resolved host from remote address", "host", host)
	}
	if host == "" {
		return decoratorconfig.InvalidEntry
	}
	return r.cache.Get(context.Background(), host)
}

// ResolveHost resolves a host name directly, bypassing host extraction.
func (r *Resolver) ResolveHost(host string) *decoratorconfig.Entry {
	if host == "" || !r.ensureFresh() {
		return decoratorconfig.InvalidEntry
	}
	return r.cache.Get(context.Background(), host)
}

// Refresh binds a source if one is available and reloads it when stale,
// without resolving anything. It reports whether a source is bound.
func (r *Resolver) Refresh() bool {
	return r.ensureFresh()
}

func (r *Resolver) ensureFresh() bool {
	b := r.bound.Load()
	if b == nil {
		b = r.initialize()
		if b == nil {
			return false
		}
	}
	if b.src.NeedsReload() {
		r.reloader.reload(b.src)
	}
	return true
}

func (r *Resolver) initialize() *boundSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b := r.bound.Load(); b != nil {
		return b
	}
	src, err := r.opts.Locator.Locate(context.Background())
	if err != nil || src == nil {
		r.logger.Debug("decorator configuration source not available", "error", err)
		return nil
	}
	// publish the first set before other requests can see the binding
	if src.NeedsReload() {
		r.loadAndPublish(src)
	}
	b := &boundSource{src: src}
	r.bound.Store(b)
	r.logger.Info("decorator configuration source bound", "reload_mode", r.opts.ReloadMode.String())
	return b
}

// loadAndPublish must be called with r.mu held.
func (r *Resolver) loadAndPublish(src configsource.Source) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("panic loading decorator configuration", "panic", p)
		}
	}()
	set := src.Load(context.Background())
	if set == nil {
		set = r.current.Load().set
	}
	r.publish(set)
	r.cache.InvalidateAll()
	r.reloads.Add(1)
	if r.opts.OnReload != nil {
		r.opts.OnReload(set)
	}
}

func (r *Resolver) publish(set *decoratorconfig.Set) {
	headers := set.HostHeaders()
	if !slices.Contains(headers, r.opts.HostHeader) {
		headers = append(headers, r.opts.HostHeader)
	}
	r.current.Store(&snapshot{set: set, headers: headers})
}

func (r *Resolver) compute(_ context.Context, host string) (entry *decoratorconfig.Entry) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.logger.Error("panic matching host", "host", host, "panic", p)
			entry = decoratorconfig.InvalidEntry
		}
	}()
	return r.matcher.Match(host, r.current.Load().set)
}

// Current returns the last published set.
func (r *Resolver) Current() *decoratorconfig.Set { return r.current.Load().set }

func (r *Resolver) Initialized() bool { return r.bound.Load() != nil }

// CachedHosts lists the hosts with a memoized decision, oldest first.
func (r *Resolver) CachedHosts() []string { return r.cache.Keys() }

// Source returns the bound source, or nil while uninitialized.
func (r *Resolver) Source() configsource.Source {
	if b := r.bound.Load(); b != nil {
		return b.src
	}
	return nil
}

func (r *Resolver) Stats() Stats {
	set := r.Current()
	return Stats{
		Initialized: r.Initialized(),
		Generation:  set.Generation(),
		Entries:     set.Len(),
		LoadedAt:    set.LoadedAt(),
		Resolves:    r.resolves.Load(),
		Reloads:     r.reloads.Load(),
		Panics:      r.panics.Load(),
		Cache:       r.cache.Stats(),
	}
}

// Close stops the background reloader and purges the cache.
func (r *Resolver) Close() {
	r.closeOnce.Do(func() {
		r.reloader.stop()
		r.cache.Purge()
	})
}
