package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayCallLatency tracks model gateway call latency in seconds
	GatewayCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "email_analyzer_gateway_call_duration_seconds",
			Help:    "Model gateway call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~200s
		},
		[]string{"status"}, // status: ok, timeout, connection_error, service_error
	)

	// AnalysisRounds tracks how many rounds each email needed
	AnalysisRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "email_analyzer_analysis_rounds",
			Help:    "Number of model rounds executed per analyzed email",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		},
	)

	// EmailsProcessed counts emails by outcome
	EmailsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_analyzer_emails_processed_total",
			Help: "Total number of emails processed",
		},
		[]string{"status", "kind"},
	)

	// IntakeQueueDepth reports messages waiting for analysis in the SMTP intake
	IntakeQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "email_analyzer_intake_queue_depth",
			Help: "Messages accepted over SMTP and waiting for analysis",
		},
	)
)

// ObserveGatewayCall records the latency of a single gateway call
func ObserveGatewayCall(status string, duration time.Duration) {
	GatewayCallLatency.WithLabelValues(status).Observe(duration.Seconds())
}

// ObserveAnalysisRounds records the rounds executed for one email
func ObserveAnalysisRounds(rounds int) {
	AnalysisRounds.Observe(float64(rounds))
}

// ObserveEmailOutcome counts one processed email
func ObserveEmailOutcome(status, kind string) {
	EmailsProcessed.WithLabelValues(status, kind).Inc()
}

// Handler returns the HTTP handler exposing the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
