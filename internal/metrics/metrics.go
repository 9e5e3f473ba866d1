package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"path", "method", "status_code"},
	)

	// Gauge: chat streams currently being relayed.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_streams",
			Help: "Number of chat streams currently open.",
		},
	)

	// Counter: upstream frames by decode outcome (decoded | skipped | fatal).
	FramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_frames_total",
			Help: "Upstream frames observed, by decode result.",
		},
		[]string{"result"},
	)

	// Counter: text delta events forwarded downstream.
	TextDeltasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_text_deltas_total",
			Help: "Text delta events forwarded downstream.",
		},
	)

	// Counter: redundant final text snapshots suppressed by the dedup policy.
	FinalsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_finals_suppressed_total",
			Help: "Final full-text snapshots suppressed as duplicates.",
		},
	)

	// Counter: tool call lifecycle events by phase (start | complete).
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_tool_calls_total",
			Help: "Tool call lifecycle events forwarded, by phase.",
		},
		[]string{"phase"},
	)

	// Counter: tool responses with no matching open call.
	OrphanToolResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_orphan_tool_responses_total",
			Help: "Tool responses dropped because no matching call was open.",
		},
	)

	// Counter: suggestion enrichment outcomes (ok | error | discarded).
	EnrichmentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_enrichment_total",
			Help: "Suggestion enrichment attempts, by outcome.",
		},
		[]string{"result"},
	)

	// Counter: suggestion cache hits.
	SuggestCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suggest_cache_hits_total",
			Help: "Total number of suggestion cache hits.",
		},
	)

	// Counter: credential refreshes against the identity provider.
	TokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Credential refresh attempts, by outcome.",
		},
		[]string{"result"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		GatewayLatencySeconds,
		ActiveStreams,
		FramesTotal,
		TextDeltasTotal,
		FinalsSuppressedTotal,
		ToolCallsTotal,
		OrphanToolResponsesTotal,
		EnrichmentTotal,
		SuggestCacheHitsTotal,
		TokenRefreshTotal,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		GatewayLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so SSE streaming still flushes
// through the metrics middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
