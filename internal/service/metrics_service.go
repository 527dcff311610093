package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academic-records-api/internal/models"
)

// Transaction outcomes used as metric labels.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeAborted    = "aborted"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	transactionTotal    *prometheus.CounterVec
	ledgerRows          *prometheus.CounterVec

	requestCount             uint64
	requestDurationTotal     uint64
	committedCount           uint64
	rolledBackCount          uint64
	transactionDurationTotal uint64
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

	transactionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_transaction_duration_seconds",
		Help:    "Duration of ledger units of work",
		Buckets: prometheus.DefBuckets,
	}, []string{"label", "outcome"})

	transactionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transactions_total",
		Help: "Total ledger units of work by outcome",
	}, []string{"label", "outcome"})

	ledgerRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_rows_written_total",
		Help: "Rows upserted by committed ledger units of work",
	}, []string{"ledger"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, transactionDuration, transactionTotal, ledgerRows, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		transactionDuration: transactionDuration,
		transactionTotal:    transactionTotal,
		ledgerRows:          ledgerRows,
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveTransaction records the duration and outcome of a unit of work.
func (m *MetricsService) ObserveTransaction(label, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transactionDuration.WithLabelValues(label, outcome).Observe(duration.Seconds())
	m.transactionTotal.WithLabelValues(label, outcome).Inc()
	if outcome == OutcomeCommitted {
		atomic.AddUint64(&m.committedCount, 1)
	} else {
		atomic.AddUint64(&m.rolledBackCount, 1)
	}
	atomic.AddUint64(&m.transactionDurationTotal, uint64(duration.Nanoseconds()))
}

// AddLedgerRows counts rows written by a committed unit of work.
func (m *MetricsService) AddLedgerRows(ledger string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.ledgerRows.WithLabelValues(ledger).Add(float64(rows))
}

// Snapshot returns aggregated metrics suitable for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	committed := atomic.LoadUint64(&m.committedCount)
	rolledBack := atomic.LoadUint64(&m.rolledBackCount)
	txDuration := atomic.LoadUint64(&m.transactionDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgTxMs float64
	if txCount := committed + rolledBack; txCount > 0 {
		avgTxMs = float64(txDuration) / float64(txCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:                requests,
		AverageRequestDurationMs:     avgRequestMs,
		TransactionsCommitted:        committed,
		TransactionsRolledBack:       rolledBack,
		AverageTransactionDurationMs: avgTxMs,
		Goroutines:                   runtime.NumGoroutine(),
		GeneratedAt:                  time.Now().UTC(),
	}
}
