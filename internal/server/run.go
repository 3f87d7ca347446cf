package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/onehippo-forge/servlet-filter-decorators/internal/config"
	"github.com/onehippo-forge/servlet-filter-decorators/internal/logx"
	"github.com/onehippo-forge/servlet-filter-decorators/internal/version"
)

func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logx.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	if logx.ParseLevel(cfg.Logging.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	accessLogger, accessClose, accessColor, err := openAccessLogger(cfg)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	pidCleanup, err := writePIDFile(cfg)
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if pidCleanup != nil {
		defer func() { _ = pidCleanup.Close() }()
	}

	srv, err := New(cfg, logger, WithAccessLog(accessLogger, accessColor))
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	installReloadSignalHandler(ctx, srv)

	logger.Info("starting decorators", "version", version.Short(), "source", cfg.Source.Type, "reload_mode", cfg.Resolver.ReloadMode)
	return srv.Serve(ctx)
}

func openAccessLogger(cfg *config.Config) (*log.Logger, io.Closer, bool, error) {
	if cfg == nil || !cfg.AccessLogEnabled() {
		return nil, nil, false, nil
	}

	path := strings.TrimSpace(cfg.Logging.AccessLogPath)
	if path == "" {
		return log.New(os.Stdout, "", log.LstdFlags), nil, logx.ColorEnabled(), nil
	}

	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, false, err
		}
	}
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, false, err
	}
	return log.New(f, "", log.LstdFlags), f, false, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func writePIDFile(cfg *config.Config) (io.Closer, error) {
	if cfg == nil {
		return nil, nil
	}
	path := strings.TrimSpace(cfg.Server.PidFile)
	if path == "" {
		return nil, nil
	}
	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	tmp := path + ".tmp"
	pid := strconv.Itoa(os.Getpid()) + "\n"
	// #nosec G304 -- pid_file comes from trusted config/env.
	if err := os.WriteFile(tmp, []byte(pid), 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return closerFunc(func() error { return os.Remove(path) }), nil
}

// installReloadSignalHandler turns SIGHUP into a configuration reload.
func installReloadSignalHandler(ctx context.Context, srv *Server) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				srv.logger.Info("SIGHUP received, reloading decorator configuration")
				srv.Reload()
			}
		}
	}()
}

// SendReloadSignal sends SIGHUP to the process recorded in the pid file of
// the config at cfgPath.
func SendReloadSignal(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pidFile := strings.TrimSpace(cfg.Server.PidFile)
	if pidFile == "" {
		return fmt.Errorf("server.pid_file is not set in %q (or DECORATORS_PID_FILE)", cfgPath)
	}
	// #nosec G304 -- pid file path comes from trusted config/env.
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("read pid file %q: %w", pidFile, err)
	}
	pidStr := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return fmt.Errorf("invalid pid in %q: %q", pidFile, pidStr)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process pid=%d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("send SIGHUP pid=%d: %w", pid, err)
	}
	return nil
}
