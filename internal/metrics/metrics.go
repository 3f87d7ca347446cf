package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/resolver"
)

const namespace = "decorators"

// Metrics owns a registry so that several servers (or tests) can coexist in
// one process.
type Metrics struct {
	registry *prometheus.Registry

	decorations   *prometheus.CounterVec
	undecorations *prometheus.CounterVec
	loads         *prometheus.CounterVec
	loadedRecords prometheus.Gauge
	skipped       prometheus.Gauge
}

// New registers request and load counters plus gauges that read stats on
// every scrape.
func New(stats func() resolver.Stats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests seen by the decoration middleware, by outcome.",
		}, []string{"outcome"}),
		undecorations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undecorations_total",
			Help:      "Undecorate operations, by unwrap mode.",
		}, []string{"mode"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_loads_total",
			Help:      "Configuration fetch attempts, by result.",
		}, []string{"result"}),
		loadedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_records_loaded",
			Help:      "Records accepted by the last successful load.",
		}),
		skipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_records_skipped",
			Help:      "Records rejected by the last successful load.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decorations,
		m.undecorations,
		m.loads,
		m.loadedRecords,
		m.skipped,
	)
	if stats != nil {
		m.registerStats(stats)
	}
	return m
}

func (m *Metrics) registerStats(stats func() resolver.Stats) {
	counter := func(name, help string, f func(resolver.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return float64(f(stats())) })
	}
	gauge := func(name, help string, f func(resolver.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
			func() float64 { return f(stats()) })
	}
	m.registry.MustRegister(
		counter("cache_hits_total", "Decision cache hits.", func(s resolver.Stats) uint64 { return s.Cache.Hits }),
		counter("cache_misses_total", "Decision cache misses.", func(s resolver.Stats) uint64 { return s.Cache.Misses }),
		counter("cache_evaluations_total", "Host pattern evaluations.", func(s resolver.Stats) uint64 { return s.Cache.Loads }),
		counter("cache_invalidations_total", "Whole-cache invalidations.", func(s resolver.Stats) uint64 { return s.Cache.Invalidations }),
		counter("resolves_total", "Resolve calls.", func(s resolver.Stats) uint64 { return s.Resolves }),
		counter("reloads_total", "Configuration reloads published.", func(s resolver.Stats) uint64 { return s.Reloads }),
		counter("panics_total", "Recovered panics while resolving.", func(s resolver.Stats) uint64 { return s.Panics }),
		gauge("cache_entries", "Hosts held in the decision cache.", func(s resolver.Stats) float64 { return float64(s.Cache.Size) }),
		gauge("config_entries", "Entries in the published configuration.", func(s resolver.Stats) float64 { return float64(s.Entries) }),
		gauge("config_generation", "Generation of the published configuration.", func(s resolver.Stats) float64 { return float64(s.Generation) }),
		gauge("config_loaded_timestamp_seconds", "Load time of the published configuration.", func(s resolver.Stats) float64 {
			if s.LoadedAt.IsZero() {
				return 0
			}
			return float64(s.LoadedAt.UnixNano()) / 1e9
		}),
		gauge("initialized", "1 once a configuration source is bound.", func(s resolver.Stats) float64 {
			if s.Initialized {
				return 1
			}
			return 0
		}),
	)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecorate matches decoration.Options.OnDecorate.
func (m *Metrics) ObserveDecorate(_ decoration.Request, _ *decoratorconfig.Entry, decorated bool) {
	if decorated {
		m.decorations.WithLabelValues("decorated").Inc()
		return
	}
	m.decorations.WithLabelValues("passthrough").Inc()
}

// ObserveUndecorate matches decoration.Options.OnUndecorate.
func (m *Metrics) ObserveUndecorate(_ decoration.Request, res decoration.UnwrapResult) {
	m.undecorations.WithLabelValues(res.String()).Inc()
}

// ObserveLoad matches configsource.LoaderOptions.OnLoad.
func (m *Metrics) ObserveLoad(res decoratorconfig.LoadResult, err error) {
	if err != nil {
		m.loads.WithLabelValues("error").Inc()
		return
	}
	m.loads.WithLabelValues("ok").Inc()
	m.loadedRecords.Set(float64(len(res.LoadedRecords)))
	m.skipped.Set(float64(len(res.SkippedRecords)))
}
