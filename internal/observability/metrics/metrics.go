// Package metrics exposes Prometheus collectors for the prompt relay and the
// HTTP middleware that feeds them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InferenceBuckets covers provider round trips from 100ms up to the two
// minute ceiling of long generations.
var InferenceBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts relay results by HTTP status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptbridge_requests_total",
			Help: "Relay requests by response status.",
		},
		[]string{"status"},
	)

	// HTTPRequestDuration records end-to-end handler latency per route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptbridge_http_request_duration_seconds",
			Help:    "HTTP request duration.",
			Buckets: InferenceBuckets,
		},
		[]string{"handler", "method", "code"},
	)

	// ProviderRequestsTotal counts inference invocations by outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptbridge_provider_requests_total",
			Help: "Inference provider invocations.",
		},
		[]string{"outcome"},
	)

	// ProviderLatency records the provider round trip including body drain.
	ProviderLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptbridge_provider_latency_seconds",
			Help:    "Inference provider latency.",
			Buckets: InferenceBuckets,
		},
	)

	// ExtractionsTotal counts which response shape produced the assistant content.
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptbridge_extractions_total",
			Help: "Assistant content extractions by response shape.",
		},
		[]string{"shape", "resolved"},
	)

	// SinkErrorsTotal counts diagnostic records that a sink failed to accept.
	SinkErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "promptbridge_diagnostic_sink_errors_total",
			Help: "Diagnostic sink emission failures.",
		},
	)
)

// Provider invocation outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeInvokeError = "invoke_error"
	OutcomeDecodeError = "decode_error"
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderLatency,
		ExtractionsTotal,
		SinkErrorsTotal,
	)
}

// Handler exposes the default registry in Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
