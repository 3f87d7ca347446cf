// Package consulsource keeps decorator records in Consul KV, one YAML record
// per key below a prefix, and watches the prefix with blocking queries.
package consulsource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/configsource"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
)

const (
	DefaultAddr     = "localhost:8500"
	DefaultPrefix   = "decorators/"
	DefaultWaitTime = 30 * time.Second
)

type Config struct {
	Addr     string
	Prefix   string
	WaitTime time.Duration
	Token    string
}

type HeaderRoundTripper struct {
	Rt http.RoundTripper
}

func (h *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	return h.Rt.RoundTrip(req)
}

func NewClient(cfg Config) (*consulapi.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	consulCfg := consulapi.DefaultConfig()
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	consulCfg.Address = addr
	if cfg.Token != "" {
		consulCfg.Token = cfg.Token
	}
	consulCfg.HttpClient = &http.Client{
		Transport: &HeaderRoundTripper{Rt: http.DefaultTransport},
	}
	return consulapi.NewClient(consulCfg)
}

// KV is the subset of the Consul KV API used here.
type KV interface {
	List(prefix string, q *consulapi.QueryOptions) (consulapi.KVPairs, *consulapi.QueryMeta, error)
}

func normalizePrefix(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	if p == "" {
		return DefaultPrefix
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

type Store struct {
	kv     KV
	prefix string
	logger *slog.Logger
}

func NewStore(kv KV, prefix string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, prefix: normalizePrefix(prefix), logger: logger}
}

func (s *Store) Prefix() string { return s.prefix }

// Fetch lists the prefix and decodes every key into a record, in key order.
// Keys that do not decode are logged and skipped.
func (s *Store) Fetch(ctx context.Context) ([]decoratorconfig.Record, error) {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	pairs, _, err := s.kv.List(s.prefix, q)
	if err != nil {
		return nil, fmt.Errorf("list consul prefix %s: %w", s.prefix, err)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key < pairs[j].Key })

	records := make([]decoratorconfig.Record, 0, len(pairs))
	for _, p := range pairs {
		if p == nil || strings.HasSuffix(p.Key, "/") || len(p.Value) == 0 {
			continue
		}
		name := strings.TrimPrefix(p.Key, s.prefix)
		rec, err := decoratorconfig.ParseRecordYAML(name, p.Value)
		if err != nil {
			s.logger.Error("invalid decorator record in consul", "key", p.Key, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Watcher issues blocking queries against the prefix and marks changes
// whenever the index moves.
type Watcher struct {
	KV       KV
	Prefix   string
	WaitTime time.Duration
	Changes  *configsource.Staleness
	Logger   *slog.Logger
	// ErrorBackoff is the pause after a failed query.
	ErrorBackoff time.Duration
}

func (w *Watcher) Watch(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := w.WaitTime
	if wait <= 0 {
		wait = DefaultWaitTime
	}
	backoff := w.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	prefix := normalizePrefix(w.Prefix)

	var lastIndex uint64
	for {
		select {
		case <-ctx.Done():
			logger.Info("consul watcher stopping", "prefix", prefix)
			return nil
		default:
		}

		q := (&consulapi.QueryOptions{WaitIndex: lastIndex, WaitTime: wait}).WithContext(ctx)
		_, meta, err := w.KV.List(prefix, q)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("consul watcher stopping", "prefix", prefix)
				return nil
			}
			logger.Warn("error watching consul prefix", "prefix", prefix, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		if meta == nil || meta.LastIndex == lastIndex {
			continue
		}
		// the index can go backwards after a consul restart
		if meta.LastIndex < lastIndex {
			logger.Debug("consul index went backwards, resetting", "prefix", prefix, "from", lastIndex, "to", meta.LastIndex)
		}
		// the first response only establishes the baseline; the loader starts dirty
		if lastIndex != 0 {
			logger.Debug("consul prefix changed", "prefix", prefix, "last_index", lastIndex, "new_index", meta.LastIndex)
			w.Changes.Set()
		}
		lastIndex = meta.LastIndex
	}
}
