// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers for the relay.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesRelayed    prometheus.Counter
	SubscribersEvicted prometheus.Counter
	EmoteCacheHits     prometheus.Counter
	EmoteCacheMisses   prometheus.Counter
	ProviderFailures   *prometheus.CounterVec
	ProxyErrors        prometheus.Counter
	StatusTransitions  *prometheus.CounterVec

	// Histograms (seconds)
	CatalogLoadDuration prometheus.Observer

	// Gauges
	SSEClientsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{Name: "ducchat_messages_relayed_total", Help: "Chat messages segmented and broadcast to subscribers"})
		SubscribersEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "ducchat_sse_subscribers_evicted_total", Help: "SSE subscribers dropped because their event queue was full"})
		EmoteCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "ducchat_emote_cache_hits_total", Help: "Emote catalog loads served from the per-channel cache"})
		EmoteCacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "ducchat_emote_cache_misses_total", Help: "Emote catalog loads that hit the provider APIs"})
		ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ducchat_emote_provider_failures_total", Help: "Emote provider or identity lookup calls that failed"}, []string{"provider"})
		ProxyErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "ducchat_proxy_errors_total", Help: "Dev proxy requests that failed to reach the upstream"})
		StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ducchat_status_transitions_total", Help: "Channel session status events by state"}, []string{"state"})
		CatalogLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ducchat_catalog_load_duration_seconds", Help: "Full emote catalog aggregation duration seconds", Buckets: prometheus.DefBuckets})
		SSEClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "ducchat_sse_clients", Help: "Currently connected SSE subscribers"})
	})
}

// SetSSEClients records the current subscriber count.
func SetSSEClients(n int) {
	if SSEClientsGauge != nil {
		SSEClientsGauge.Set(float64(n))
	}
}

// RecordStatus counts a status transition by state name.
func RecordStatus(state string) {
	if StatusTransitions != nil {
		StatusTransitions.WithLabelValues(state).Inc()
	}
}

// RecordProviderFailure counts a failed provider or identity lookup call.
func RecordProviderFailure(provider string) {
	if ProviderFailures != nil {
		ProviderFailures.WithLabelValues(provider).Inc()
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
