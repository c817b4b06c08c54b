package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	Quotes             *prometheus.CounterVec
	AdjustmentsApplied *prometheus.CounterVec
	BulkFailures       *prometheus.CounterVec
	Scorings           *prometheus.CounterVec
	ScoringLatency     *prometheus.HistogramVec
	TableUpdates       *prometheus.CounterVec
	CacheAccesses      *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Quotes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_pricing_quotes_total",
				Help: "Total number of premium quotes, by band and whether a cooldown held the current rate.",
			},
			[]string{"band", "cooldown"},
		),
		AdjustmentsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_premium_adjustments_total",
				Help: "Total number of premium adjustment records appended.",
			},
			[]string{"band"},
		),
		BulkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_bulk_adjust_failures_total",
				Help: "Policies skipped by bulk adjustment, by failure kind.",
			},
			[]string{"kind"},
		),
		Scorings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_risk_scorings_total",
				Help: "Total number of risk scorings.",
			},
			[]string{"score_type", "band", "fallback"},
		),
		ScoringLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ubi_risk_scoring_duration_seconds",
				Help:    "Latency of risk scoring, feature extraction included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"score_type"},
		),
		TableUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_pricing_table_updates_total",
				Help: "Pricing table update attempts, by result.",
			},
			[]string{"result"},
		),
		CacheAccesses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_cache_accesses_total",
				Help: "Cache lookups, by cache and result.",
			},
			[]string{"cache", "result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ubi_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"path", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ubi_http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		HTTPActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ubi_http_active_requests",
				Help: "Number of in-flight HTTP requests.",
			},
		),
	}
}

// RecordScoring records one scoring call.
func (m *Metrics) RecordScoring(scoreType, band string, fallback bool, duration time.Duration) {
	m.Scorings.WithLabelValues(scoreType, band, strconv.FormatBool(fallback)).Inc()
	m.ScoringLatency.WithLabelValues(scoreType).Observe(duration.Seconds())
}

// RecordQuote records a computed quote.
func (m *Metrics) RecordQuote(band string, cooldownApplied bool) {
	m.Quotes.WithLabelValues(band, strconv.FormatBool(cooldownApplied)).Inc()
}

// RecordAdjustmentApplied records an appended adjustment.
func (m *Metrics) RecordAdjustmentApplied(band string) {
	m.AdjustmentsApplied.WithLabelValues(band).Inc()
}

// RecordBulkFailure records a policy skipped by a bulk run.
func (m *Metrics) RecordBulkFailure(kind string) {
	m.BulkFailures.WithLabelValues(kind).Inc()
}

// RecordPricingTableUpdate records a table update outcome.
func (m *Metrics) RecordPricingTableUpdate(result string) {
	m.TableUpdates.WithLabelValues(result).Inc()
}

// RecordCacheAccess records a cache hit or miss.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheAccesses.WithLabelValues(cacheType, result).Inc()
}

func (m *Metrics) ActiveRequestsInc() { m.HTTPActiveRequests.Inc() }
func (m *Metrics) ActiveRequestsDec() { m.HTTPActiveRequests.Dec() }

// ObserveRequest records a finished HTTP request. path is the route template, not the raw URL.
func (m *Metrics) ObserveRequest(path, method string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

//Personal.AI order the ending
