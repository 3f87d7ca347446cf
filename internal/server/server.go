package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/config"
	"github.com/onehippo-forge/servlet-filter-decorators/internal/metrics"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource/consulsource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource/filesource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorcache"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/resolver"
)

const shutdownTimeout = 5 * time.Second

type watchFunc func(ctx context.Context) error

// Server hosts the decorated application engine and the admin endpoints.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *configsource.Registry
	module   *configsource.Module
	loader   *configsource.Loader
	resolver *resolver.Resolver
	metrics  *metrics.Metrics
	watchers []watchFunc

	engine *gin.Engine
	admin  http.Handler

	accessLog   *log.Logger
	accessColor bool
	startedAt   time.Time
}

type Option func(*Server)

// WithAccessLog sends access lines to l instead of the default.
func WithAccessLog(l *log.Logger, color bool) Option {
	return func(s *Server) {
		s.accessLog = l
		s.accessColor = color
	}
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		registry:  configsource.NewRegistry(),
		startedAt: time.Now(),
	}

	var resolverRef *resolver.Resolver
	s.metrics = metrics.New(func() resolver.Stats { return resolverRef.Stats() })

	store, watchers, err := s.buildStore()
	if err != nil {
		return nil, err
	}
	s.loader = s.newLoader(store)
	s.watchers = watchers
	for _, opt := range opts {
		opt(s)
	}

	mode, err := resolver.ParseReloadMode(cfg.Resolver.ReloadMode)
	if err != nil {
		return nil, err
	}
	s.module = &configsource.Module{
		Name:     cfg.Source.Name,
		Registry: s.registry,
		Loader:   s.loader,
		Logger:   logger,
	}
	s.resolver = resolver.New(resolver.Options{
		Locator: configsource.RegistryLocator{Registry: s.registry, Name: cfg.Source.Name},
		Cache: decoratorcache.Options{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		},
		ReloadMode: mode,
		HostHeader: cfg.Resolver.HostHeader,
		Logger:     logger.With("component", "resolver"),
	})
	resolverRef = s.resolver

	s.engine = s.newRouter()
	s.admin = s.newAdminRouter()
	return s, nil
}

func (s *Server) newLoader(store configsource.Store) *configsource.Loader {
	return configsource.NewLoader(store, configsource.LoaderOptions{
		FetchTimeout: time.Duration(s.cfg.Source.FetchTimeoutMs) * time.Millisecond,
		RetryBackoff: time.Duration(s.cfg.Source.RetryBackoffMs) * time.Millisecond,
		Logger:       s.logger.With("component", "loader"),
		OnLoad:       s.metrics.ObserveLoad,
	})
}

func (s *Server) buildStore() (configsource.Store, []watchFunc, error) {
	src := s.cfg.Source
	switch strings.ToLower(strings.TrimSpace(src.Type)) {
	case config.SourceFile:
		store, err := filesource.New(src.File.Path)
		if err != nil {
			return nil, nil, err
		}
		var watchers []watchFunc
		if src.File.Watch {
			watchers = append(watchers, func(ctx context.Context) error {
				return filesource.Watch(ctx, store.Path(), s.loader.Changes(), s.logger.With("component", "filesource"))
			})
		}
		return store, watchers, nil
	case config.SourceConsul:
		client, err := consulsource.NewClient(consulsource.Config{
			Addr:  src.Consul.Addr,
			Token: src.Consul.Token,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create consul client: %w", err)
		}
		kv := client.KV()
		store := consulsource.NewStore(kv, src.Consul.Prefix, s.logger.With("component", "consulsource"))
		var watchers []watchFunc
		if src.Consul.Watch {
			watchers = append(watchers, func(ctx context.Context) error {
				w := &consulsource.Watcher{
					KV:       kv,
					Prefix:   src.Consul.Prefix,
					WaitTime: time.Duration(src.Consul.WaitTimeMs) * time.Millisecond,
					Changes:  s.loader.Changes(),
					Logger:   s.logger.With("component", "consulsource"),
				}
				return w.Watch(ctx)
			})
		}
		return store, watchers, nil
	default:
		return nil, nil, fmt.Errorf("unknown source type %q", src.Type)
	}
}

// Engine is the decorated application handler.
func (s *Server) Engine() http.Handler { return s.engine }

func (s *Server) AdminHandler() http.Handler { return s.admin }

func (s *Server) Resolver() *resolver.Resolver { return s.resolver }

// Start publishes the configuration source so the resolver can bind it.
func (s *Server) Start() error {
	return s.module.Start()
}

// Reload marks the configuration as changed and applies it right away.
func (s *Server) Reload() {
	s.module.Reconfigure()
	s.resolver.Refresh()
}

// Close unregisters the source and purges the decision cache.
func (s *Server) Close() {
	s.module.Shutdown()
	s.resolver.Close()
}

// Serve runs the watchers and both HTTP servers until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, w := range s.watchers {
		wg.Add(1)
		go func(w watchFunc) {
			defer wg.Done()
			if err := w(ctx); err != nil {
				s.logger.Error("configuration watcher stopped", "error", err)
			}
		}(w)
	}

	readTimeout := time.Duration(s.cfg.Server.ReadTimeoutMs) * time.Millisecond
	writeTimeout := time.Duration(s.cfg.Server.WriteTimeoutMs) * time.Millisecond
	servers := []*http.Server{
		{Addr: s.cfg.Server.Listen, Handler: s.engine, ReadTimeout: readTimeout, WriteTimeout: writeTimeout},
		{Addr: s.cfg.Server.AdminListen, Handler: s.admin, ReadTimeout: readTimeout, WriteTimeout: writeTimeout},
	}
	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		name := "app"
		if i == 1 {
			name = "admin"
		}
		wg.Add(1)
		go func(name string, srv *http.Server) {
			defer wg.Done()
			s.logger.Info("http server listening", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}(name, srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, shutting down services")
	case runErr = <-errCh:
		s.logger.Error("server failed, shutting down", "error", runErr)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown", "addr", srv.Addr, "error", err)
		}
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		s.logger.Info("all services stopped gracefully")
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timeout exceeded, forcing exit")
	}
	return runErr
}
