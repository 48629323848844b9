package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/allaspectsdev/llmgate/internal/router"
)

// SnapshotSource is the read side of the router that the collector scrapes.
type SnapshotSource interface {
	Snapshot() router.Snapshot
}

// RouterCollector exports router state at scrape time. Nothing is counted
// twice: every value is read from a fresh router.Snapshot.
type RouterCollector struct {
	source SnapshotSource

	health    *prometheus.Desc
	enabled   *prometheus.Desc
	eligible  *prometheus.Desc
	failures  *prometheus.Desc
	requests  *prometheus.Desc
	errors    *prometheus.Desc
	tokens    *prometheus.Desc
	cost      *prometheus.Desc
	cacheHits *prometheus.Desc
	cacheMiss *prometheus.Desc
	cacheSize *prometheus.Desc
	cacheEvic *prometheus.Desc
	cacheExp  *prometheus.Desc
}

var _ prometheus.Collector = (*RouterCollector)(nil)

// NewRouterCollector creates a collector reading from source.
func NewRouterCollector(source SnapshotSource) *RouterCollector {
	provider := []string{"provider"}
	return &RouterCollector{
		source: source,
		health: prometheus.NewDesc("llmgate_provider_health_score",
			"Provider health score from 0 to 100.", provider, nil),
		enabled: prometheus.NewDesc("llmgate_provider_enabled",
			"1 if the provider is enabled.", provider, nil),
		eligible: prometheus.NewDesc("llmgate_provider_eligible",
			"1 if the provider is enabled and has a credential.", provider, nil),
		failures: prometheus.NewDesc("llmgate_provider_consecutive_failures",
			"Consecutive failed attempts since the last success.", provider, nil),
		requests: prometheus.NewDesc("llmgate_provider_requests_total",
			"Upstream attempts made to the provider.", provider, nil),
		errors: prometheus.NewDesc("llmgate_provider_errors_total",
			"Failed upstream attempts.", provider, nil),
		tokens: prometheus.NewDesc("llmgate_provider_tokens_total",
			"Tokens reported by successful completions.", provider, nil),
		cost: prometheus.NewDesc("llmgate_provider_cost_usd_total",
			"Cost of successful completions in USD.", provider, nil),
		cacheHits: prometheus.NewDesc("llmgate_cache_hits_total",
			"Response cache hits.", nil, nil),
		cacheMiss: prometheus.NewDesc("llmgate_cache_misses_total",
			"Response cache misses.", nil, nil),
		cacheSize: prometheus.NewDesc("llmgate_cache_entries",
			"Entries currently held by the response cache.", nil, nil),
		cacheEvic: prometheus.NewDesc("llmgate_cache_evictions_total",
			"Entries evicted because the cache was full.", nil, nil),
		cacheExp: prometheus.NewDesc("llmgate_cache_expired_total",
			"Entries dropped after their TTL elapsed.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *RouterCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.health, c.enabled, c.eligible, c.failures,
		c.requests, c.errors, c.tokens, c.cost,
		c.cacheHits, c.cacheMiss, c.cacheSize, c.cacheEvic, c.cacheExp,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *RouterCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Snapshot()

	for _, p := range snap.Providers {
		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, float64(p.HealthScore), p.ID)
		ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, boolToFloat(p.Enabled), p.ID)
		ch <- prometheus.MustNewConstMetric(c.eligible, prometheus.GaugeValue, boolToFloat(p.Eligible), p.ID)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.GaugeValue, float64(p.ErrorCount), p.ID)

		u := snap.Usage[p.ID]
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(u.Requests), p.ID)
		ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(u.Errors), p.ID)
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(u.Tokens), p.ID)
		ch <- prometheus.MustNewConstMetric(c.cost, prometheus.CounterValue, u.Cost, p.ID)
	}

	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(snap.Cache.Hits))
	ch <- prometheus.MustNewConstMetric(c.cacheMiss, prometheus.CounterValue, float64(snap.Cache.Misses))
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(snap.Cache.Entries))
	ch <- prometheus.MustNewConstMetric(c.cacheEvic, prometheus.CounterValue, float64(snap.Cache.Evictions))
	ch <- prometheus.MustNewConstMetric(c.cacheExp, prometheus.CounterValue, float64(snap.Cache.Expired))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
