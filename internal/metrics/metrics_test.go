package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoration"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorcache"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/decoratorconfig"
	"github.com/onehippo-forge/servlet-filter-decorators/pkg/resolver"
)

func TestMetrics_ObserveAndScrape(t *testing.T) {
	stats := resolver.Stats{
		Initialized: true,
		Generation:  3,
		Entries:     2,
		LoadedAt:    time.Unix(1700000000, 0),
		Resolves:    10,
		Reloads:     3,
		Cache:       decoratorcache.Stats{Hits: 7, Misses: 3, Loads: 3, Size: 2},
	}
	m := New(func() resolver.Stats { return stats })

	m.ObserveDecorate(nil, nil, true)
	m.ObserveDecorate(nil, nil, false)
	m.ObserveDecorate(nil, nil, false)
	m.ObserveUndecorate(nil, decoration.UnwrapDeep)
	m.ObserveLoad(decoratorconfig.LoadResult{LoadedRecords: []string{"a", "b"}, SkippedRecords: []string{"c"}}, nil)
	m.ObserveLoad(decoratorconfig.LoadResult{}, errors.New("down"))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	for _, want := range []string{
		"decorators_cache_hits_total 7",
		"decorators_cache_entries 2",
		"decorators_config_generation 3",
		"decorators_initialized 1",
		`decorators_requests_total{outcome="decorated"} 1`,
		`decorators_requests_total{outcome="passthrough"} 2`,
		`decorators_undecorations_total{mode="deep"} 1`,
		`decorators_config_loads_total{result="error"} 1`,
		`decorators_config_loads_total{result="ok"} 1`,
		"decorators_config_records_loaded 2",
		"decorators_config_records_skipped 1",
	} {
		require.True(t, strings.Contains(string(body), want), "missing %q", want)
	}
}
