package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector used by the engine and the proxy.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	explorerCalls    *prometheus.CounterVec
	explorerDuration prometheus.Histogram
	rateLimitHits    prometheus.Counter
	retries          prometheus.Counter

	cacheLookups *prometheus.CounterVec
	decodeSkips  *prometheus.CounterVec
	classified   *prometheus.CounterVec

	refreshesScheduled prometheus.Counter
	refreshesCancelled prometheus.Counter

	proxyRequests *prometheus.CounterVec
	proxyDuration *prometheus.HistogramVec
}

// New registers all collectors on registry. A nil registry gets a fresh one so
// tests can build isolated instances.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		gatherer: registry,
		explorerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletactivity_explorer_calls_total",
			Help: "Explorer fetch attempts by outcome",
		}, []string{"outcome"}),
		explorerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletactivity_explorer_call_duration_seconds",
			Help:    "Duration of single explorer HTTP calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		rateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletactivity_explorer_rate_limit_hits_total",
			Help: "Explorer responses that reported a rate limit",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletactivity_explorer_retries_total",
			Help: "Explorer calls repeated after a backoff delay",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletactivity_cache_lookups_total",
			Help: "History cache lookups by result",
		}, []string{"result"}),
		decodeSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletactivity_decode_skipped_total",
			Help: "Records dropped because their call data failed to decode",
		}, []string{"function"}),
		classified: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletactivity_classified_total",
			Help: "Records classified by kind",
		}, []string{"kind"}),
		refreshesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletactivity_refreshes_scheduled_total",
			Help: "Forced refreshes scheduled after confirmed writes",
		}),
		refreshesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "walletactivity_refreshes_cancelled_total",
			Help: "Scheduled refreshes cancelled by a newer trigger or view close",
		}),
		proxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walletactivity_proxy_requests_total",
			Help: "Proxy requests by status code",
		}, []string{"status"}),
		proxyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "walletactivity_proxy_request_duration_seconds",
			Help:    "Proxy request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordExplorerCall counts one explorer attempt and its latency.
func (m *Metrics) RecordExplorerCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.explorerCalls.WithLabelValues(outcome).Inc()
	m.explorerDuration.Observe(elapsed.Seconds())
}

// RecordRateLimitHit counts a rate-limited explorer response.
func (m *Metrics) RecordRateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimitHits.Inc()
}

// RecordRetry counts a backoff retry.
func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordDecodeSkipped counts a record dropped on decode failure.
func (m *Metrics) RecordDecodeSkipped(function string) {
	if m == nil {
		return
	}
	m.decodeSkips.WithLabelValues(function).Inc()
}

// RecordClassified counts a classified record.
func (m *Metrics) RecordClassified(kind string) {
	if m == nil {
		return
	}
	m.classified.WithLabelValues(kind).Inc()
}

// RecordRefreshesScheduled counts refreshes put on the timer wheel.
func (m *Metrics) RecordRefreshesScheduled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshesScheduled.Add(float64(n))
}

// RecordRefreshesCancelled counts pending refreshes that were stopped.
func (m *Metrics) RecordRefreshesCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshesCancelled.Add(float64(n))
}

// RecordProxyRequest counts one proxy request.
func (m *Metrics) RecordProxyRequest(status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.proxyRequests.WithLabelValues(code).Inc()
	m.proxyDuration.WithLabelValues(code).Observe(elapsed.Seconds())
}
