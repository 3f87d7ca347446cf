package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SourceFile   = "file"
	SourceConsul = "consul"
)

type Config struct {
	Server struct {
		Listen         string `yaml:"listen"`
		AdminListen    string `yaml:"admin_listen"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		PidFile        string `yaml:"pid_file"`
		// ContextPath is the path the application is mounted on when no
		// decoration applies.
		ContextPath string `yaml:"context_path"`
		// UndecoratedPrefixes are route prefixes served with the original
		// context path even for decorated hosts.
		UndecoratedPrefixes []string `yaml:"undecorated_prefixes"`
	} `yaml:"server"`

	Source struct {
		Type           string `yaml:"type"`
		Name           string `yaml:"name"`
		FetchTimeoutMs int    `yaml:"fetch_timeout_ms"`
		RetryBackoffMs int    `yaml:"retry_backoff_ms"`

		File struct {
			Path  string `yaml:"path"`
			Watch bool   `yaml:"watch"`
		} `yaml:"file"`

		Consul struct {
			Addr       string `yaml:"addr"`
			Prefix     string `yaml:"prefix"`
			Token      string `yaml:"token"`
			WaitTimeMs int    `yaml:"wait_time_ms"`
			Watch      bool   `yaml:"watch"`
		} `yaml:"consul"`
	} `yaml:"source"`

	Cache struct {
		MaxEntries int `yaml:"max_entries"`
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`

	Resolver struct {
		ReloadMode     string `yaml:"reload_mode"`
		HostHeader     string `yaml:"host_header"`
		MaxUnwrapDepth int    `yaml:"max_unwrap_depth"`
	} `yaml:"resolver"`

	Logging struct {
		Level         string `yaml:"level"`
		Format        string `yaml:"format"`
		AccessLog     *bool  `yaml:"access_log"`
		AccessLogPath string `yaml:"access_log_path"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AccessLogEnabled reports logging.access_log, which defaults to true.
func (c *Config) AccessLogEnabled() bool {
	return c.Logging.AccessLog == nil || *c.Logging.AccessLog
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":8080"
	}
	if strings.TrimSpace(cfg.Server.AdminListen) == "" {
		cfg.Server.AdminListen = ":19005"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 30000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 30000
	}
	if strings.TrimSpace(cfg.Source.Type) == "" {
		cfg.Source.Type = SourceFile
	}
	if strings.TrimSpace(cfg.Source.Name) == "" {
		cfg.Source.Name = "decorators"
	}
	if cfg.Source.FetchTimeoutMs <= 0 {
		cfg.Source.FetchTimeoutMs = 5000
	}
	if cfg.Source.RetryBackoffMs <= 0 {
		cfg.Source.RetryBackoffMs = 10000
	}
	if strings.TrimSpace(cfg.Source.File.Path) == "" {
		cfg.Source.File.Path = "./decorators.yaml"
	}
	if strings.TrimSpace(cfg.Source.Consul.Addr) == "" {
		cfg.Source.Consul.Addr = "localhost:8500"
	}
	if strings.TrimSpace(cfg.Source.Consul.Prefix) == "" {
		cfg.Source.Consul.Prefix = "decorators/"
	}
	if cfg.Source.Consul.WaitTimeMs <= 0 {
		cfg.Source.Consul.WaitTimeMs = 30000
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 100
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 30 * 24 * 60 * 60
	}
	if strings.TrimSpace(cfg.Resolver.ReloadMode) == "" {
		cfg.Resolver.ReloadMode = "sync"
	}
	if strings.TrimSpace(cfg.Resolver.HostHeader) == "" {
		cfg.Resolver.HostHeader = "X-Forwarded-Host"
	}
	if cfg.Resolver.MaxUnwrapDepth == 0 {
		cfg.Resolver.MaxUnwrapDepth = 16
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	// default true for local debugging
	if cfg.Logging.AccessLog == nil {
		on := true
		cfg.Logging.AccessLog = &on
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DECORATORS_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_ADMIN_LISTEN")); v != "" {
		cfg.Server.AdminListen = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_CONTEXT_PATH")); v != "" {
		cfg.Server.ContextPath = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_SOURCE_TYPE")); v != "" {
		cfg.Source.Type = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_FILE")); v != "" {
		cfg.Source.File.Path = v
	}
	cfg.Source.File.Watch = envBool("DECORATORS_FILE_WATCH", cfg.Source.File.Watch)
	if v := strings.TrimSpace(os.Getenv("DECORATORS_CONSUL_ADDR")); v != "" {
		cfg.Source.Consul.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_CONSUL_PREFIX")); v != "" {
		cfg.Source.Consul.Prefix = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_CONSUL_TOKEN")); v != "" {
		cfg.Source.Consul.Token = v
	}
	cfg.Source.Consul.Watch = envBool("DECORATORS_CONSUL_WATCH", cfg.Source.Consul.Watch)
	if v := strings.TrimSpace(os.Getenv("DECORATORS_RELOAD_MODE")); v != "" {
		cfg.Resolver.ReloadMode = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_HOST_HEADER")); v != "" {
		cfg.Resolver.HostHeader = v
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_CACHE_MAX_ENTRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	accessLog := envBool("DECORATORS_ACCESS_LOG", cfg.AccessLogEnabled())
	cfg.Logging.AccessLog = &accessLog
	if v := strings.TrimSpace(os.Getenv("DECORATORS_READ_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.ReadTimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DECORATORS_WRITE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Server.WriteTimeoutMs = n
		}
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Source.Type)) {
	case SourceFile, SourceConsul:
	default:
		return fmt.Errorf("source.type must be %q or %q, got %q", SourceFile, SourceConsul, cfg.Source.Type)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Resolver.ReloadMode)) {
	case "sync", "background", "async":
	default:
		return fmt.Errorf("resolver.reload_mode must be sync or background, got %q", cfg.Resolver.ReloadMode)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must be non-negative")
	}
	if cfg.Cache.TTLSeconds < 0 {
		return errors.New("cache.ttl_seconds must be non-negative")
	}
	if cfg.Resolver.MaxUnwrapDepth < 0 {
		return errors.New("resolver.max_unwrap_depth must be non-negative")
	}
	return nil
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
