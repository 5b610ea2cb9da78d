// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	wsState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connection_state",
			Help: "Streaming connection state (0=disconnected 1=connecting 2=connected 3=closed-pending-retry).",
		},
	)

	wsReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_reconnects_total",
			Help: "Count of reconnection attempts after a transport failure.",
		},
	)

	wsAuthDisposals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_auth_disposals_total",
			Help: "Count of connections torn down because the session token changed.",
		},
	)

	opLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphql_op_latency_ms",
			Help:    "One-shot operation latency distribution in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"operation", "success"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_events_total",
			Help: "Cache hits, misses and optimistic merges per operation.",
		},
		[]string{"operation", "event"},
	)

	subsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Number of live subscriptions on the shared connection.",
		},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			wsState, wsReconnects, wsAuthDisposals,
			opLatencyMs, cacheEvents, subsActive,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Connection helpers --------

func SetConnectionState(state int) { wsState.Set(float64(state)) }
func IncReconnect()                { wsReconnects.Inc() }
func IncAuthDisposal()             { wsAuthDisposals.Inc() }
func AddActiveSubscriptions(d int) { subsActive.Add(float64(d)) }

// -------- Operation helpers --------

func ObserveOpLatency(operation string, ms float64, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	opLatencyMs.WithLabelValues(norm(operation), s).Observe(ms)
}

func CacheHit(operation string)   { cacheEvents.WithLabelValues(norm(operation), "hit").Inc() }
func CacheMiss(operation string)  { cacheEvents.WithLabelValues(norm(operation), "miss").Inc() }
func CacheMerge(operation string) { cacheEvents.WithLabelValues(norm(operation), "merge").Inc() }
