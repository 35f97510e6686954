package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// consumption ledger.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	consumptionsTotal    *prometheus.CounterVec
	balanceClamps        prometheus.Counter
	duplicateSubmissions prometheus.Counter
	cacheHits            prometheus.Counter
	cacheMisses          prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	consumptionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumptions_total",
		Help: "Consumption submissions by outcome",
	}, []string{"outcome"})

	balanceClamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance_clamps_total",
		Help: "Times a negative remaining balance was clamped to zero; any increase signals inconsistent stored hours",
	})

	duplicateSubmissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_submissions_total",
		Help: "Consumption submissions rejected by idempotency key reservation",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, consumptionsTotal, balanceClamps,
		duplicateSubmissions, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:             registry,
		handler:              handler,
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		consumptionsTotal:    consumptionsTotal,
		balanceClamps:        balanceClamps,
		duplicateSubmissions: duplicateSubmissions,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordConsumption tracks a consumption submission outcome
// (succeeded, rejected, failed).
func (m *MetricsService) RecordConsumption(outcome string) {
	if m == nil {
		return
	}
	m.consumptionsTotal.WithLabelValues(outcome).Inc()
}

// RecordBalanceClamp flags a displayed balance that had to be clamped to zero.
func (m *MetricsService) RecordBalanceClamp() {
	if m == nil {
		return
	}
	m.balanceClamps.Inc()
}

// RecordDuplicateSubmission counts a rejected duplicate request id.
func (m *MetricsService) RecordDuplicateSubmission() {
	if m == nil {
		return
	}
	m.duplicateSubmissions.Inc()
}

// RecordCacheLookup tracks summary cache hits and misses.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
