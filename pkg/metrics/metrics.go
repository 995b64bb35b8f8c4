// Package metrics provides Prometheus metrics for the feed keeper.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SourceFetchesTotal is a counter of market data fetches by outcome.
	SourceFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetches_total",
			Help: "Total number of quote fetches per source and outcome",
		},
		[]string{"source", "status"},
	)

	// SourceHealth is a gauge of source health (1 = healthy, 0 = unhealthy).
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1 = healthy, 0 = unhealthy)",
		},
		[]string{"source", "type"},
	)

	// SourceLastUpdate is a gauge of the last successful fetch timestamp.
	SourceLastUpdate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_last_update_timestamp",
			Help: "Unix timestamp of last successful quote from source",
		},
		[]string{"source"},
	)

	// PriceAggregationDuration is a histogram of aggregation duration.
	PriceAggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_aggregation_duration_seconds",
			Help:    "Time taken to collect and aggregate quotes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	// AggregatedConfidence is a gauge of the last aggregated confidence.
	AggregatedConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregated_confidence",
			Help: "Confidence of the last aggregated price per symbol",
		},
		[]string{"symbol"},
	)

	// OutlierRejectionsTotal is a counter of outlier rejections.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of quotes rejected as outliers",
		},
		[]string{"symbol"},
	)

	// SubmissionsTotal is a counter of update submissions by outcome.
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_submissions_total",
			Help: "Total number of price update submissions",
		},
		[]string{"pair", "status"},
	)

	// SubmissionDuration is a histogram of ledger round trips.
	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_submission_duration_seconds",
			Help:    "Time from submission to ledger receipt",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"pair"},
	)

	// KeeperErrorsTotal is a counter of keeper errors by kind.
	KeeperErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keeper_errors_total",
			Help: "Total number of keeper errors by error kind",
		},
		[]string{"pair", "kind"},
	)

	// CycleDuration is a histogram of keeper cycle duration.
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keeper_cycle_duration_seconds",
			Help:    "Duration of one keeper cycle over all pairs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// PairSuspended is a gauge set while the keeper skips a pair.
	PairSuspended = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keeper_pair_suspended",
			Help: "Whether the keeper currently skips a pair (1 = suspended)",
		},
		[]string{"pair", "reason"},
	)

	// HTTPRequestsTotal is a counter of HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request duration.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	prometheus.MustRegister(
		SourceFetchesTotal,
		SourceHealth,
		SourceLastUpdate,
		PriceAggregationDuration,
		AggregatedConfidence,
		OutlierRejectionsTotal,
		SubmissionsTotal,
		SubmissionDuration,
		KeeperErrorsTotal,
		CycleDuration,
		PairSuspended,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordSourceFetch records the outcome of one quote fetch.
func RecordSourceFetch(source string, err error) {
	if err != nil {
		SourceFetchesTotal.WithLabelValues(source, "error").Inc()
		return
	}
	SourceFetchesTotal.WithLabelValues(source, "success").Inc()
	SourceLastUpdate.WithLabelValues(source).SetToCurrentTime()
}

// RecordSourceHealth records the health status of a source.
func RecordSourceHealth(source, sourceType string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source, sourceType).Set(val)
}

// RecordAggregation records an aggregation and the confidence it produced.
func RecordAggregation(symbol string, confidence float64, duration time.Duration) {
	PriceAggregationDuration.WithLabelValues(symbol).Observe(duration.Seconds())
	AggregatedConfidence.WithLabelValues(symbol).Set(confidence)
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(symbol string) {
	OutlierRejectionsTotal.WithLabelValues(symbol).Inc()
}

// RecordSubmission records an update submission.
func RecordSubmission(pair, status string, duration time.Duration) {
	SubmissionsTotal.WithLabelValues(pair, status).Inc()
	SubmissionDuration.WithLabelValues(pair).Observe(duration.Seconds())
}

// RecordKeeperError records a keeper error.
func RecordKeeperError(pair, kind string) {
	KeeperErrorsTotal.WithLabelValues(pair, kind).Inc()
}

// RecordCycle records a completed keeper cycle.
func RecordCycle(duration time.Duration) {
	CycleDuration.Observe(duration.Seconds())
}

// RecordSuspension flips the suspension gauge for a pair.
func RecordSuspension(pair, reason string, suspended bool) {
	val := 0.0
	if suspended {
		val = 1.0
	}
	PairSuspended.WithLabelValues(pair, reason).Set(val)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
