package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/allaspectsdev/llmgate/internal/cache"
	"github.com/allaspectsdev/llmgate/internal/router"
)

type fakeSource struct {
	snap router.Snapshot
}

func (f *fakeSource) Snapshot() router.Snapshot { return f.snap }

func testSnapshot() router.Snapshot {
	return router.Snapshot{
		Providers: []router.ProviderStatus{
			{ID: "llm7", Enabled: true, HasCredential: true, Eligible: true, HealthScore: 100},
			{ID: "openai", Enabled: false, HasCredential: true, HealthScore: 50, ErrorCount: 5},
		},
		Usage: map[string]router.UsageStats{
			"llm7":   {Requests: 3, Tokens: 120, Cost: 0.25, Errors: 0},
			"openai": {Requests: 5, Errors: 5},
		},
		Cache: cache.Stats{Entries: 2, Hits: 7, Misses: 3, Evictions: 1},
	}
}

func TestRouterCollector_ProviderMetrics(t *testing.T) {
	c := NewRouterCollector(&fakeSource{snap: testSnapshot()})

	const expected = `
# HELP llmgate_provider_health_score Provider health score from 0 to 100.
# TYPE llmgate_provider_health_score gauge
llmgate_provider_health_score{provider="llm7"} 100
llmgate_provider_health_score{provider="openai"} 50
# HELP llmgate_provider_enabled 1 if the provider is enabled.
# TYPE llmgate_provider_enabled gauge
llmgate_provider_enabled{provider="llm7"} 1
llmgate_provider_enabled{provider="openai"} 0
# HELP llmgate_provider_requests_total Upstream attempts made to the provider.
# TYPE llmgate_provider_requests_total counter
llmgate_provider_requests_total{provider="llm7"} 3
llmgate_provider_requests_total{provider="openai"} 5
# HELP llmgate_provider_cost_usd_total Cost of successful completions in USD.
# TYPE llmgate_provider_cost_usd_total counter
llmgate_provider_cost_usd_total{provider="llm7"} 0.25
llmgate_provider_cost_usd_total{provider="openai"} 0
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"llmgate_provider_health_score",
		"llmgate_provider_enabled",
		"llmgate_provider_requests_total",
		"llmgate_provider_cost_usd_total",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestRouterCollector_CacheMetrics(t *testing.T) {
	c := NewRouterCollector(&fakeSource{snap: testSnapshot()})

	const expected = `
# HELP llmgate_cache_hits_total Response cache hits.
# TYPE llmgate_cache_hits_total counter
llmgate_cache_hits_total 7
# HELP llmgate_cache_misses_total Response cache misses.
# TYPE llmgate_cache_misses_total counter
llmgate_cache_misses_total 3
# HELP llmgate_cache_entries Entries currently held by the response cache.
# TYPE llmgate_cache_entries gauge
llmgate_cache_entries 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"llmgate_cache_hits_total", "llmgate_cache_misses_total", "llmgate_cache_entries")
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestRouterCollector_Count(t *testing.T) {
	c := NewRouterCollector(&fakeSource{snap: testSnapshot()})

	// 8 per provider plus 5 cache series.
	if got := testutil.CollectAndCount(c); got != 2*8+5 {
		t.Errorf("CollectAndCount = %d, want %d", got, 2*8+5)
	}
}

func TestRouterCollector_EmptyRouter(t *testing.T) {
	c := NewRouterCollector(&fakeSource{snap: router.Snapshot{}})

	if got := testutil.CollectAndCount(c, "llmgate_provider_health_score"); got != 0 {
		t.Errorf("provider series with no providers = %d, want 0", got)
	}
	if got := testutil.CollectAndCount(c, "llmgate_cache_entries"); got != 1 {
		t.Errorf("cache series = %d, want 1", got)
	}
}

func TestRouterCollector_Lint(t *testing.T) {
	c := NewRouterCollector(&fakeSource{snap: testSnapshot()})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("CollectAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}
