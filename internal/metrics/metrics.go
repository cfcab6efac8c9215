package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoice_relay"

// Metrics holds all Prometheus metrics
type Metrics struct {
	InvoicesProcessed  *prometheus.CounterVec
	ProcessingDuration prometheus.Histogram
	ValidationFailures *prometheus.CounterVec
	PipelineRuns       *prometheus.CounterVec
	ActiveRuns         prometheus.Gauge
	RetryAttempts      *prometheus.CounterVec
	FetchTime          prometheus.Histogram
	ExtractTime        prometheus.Histogram
	InsertTime         prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		InvoicesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_processed_total",
			Help:      "Total number of invoices processed",
		}, []string{"status"}),
		ProcessingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing a single invoice",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Total number of failed validation checks",
		}, []string{"check"}),
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs",
		}, []string{"outcome"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pipeline_runs",
			Help:      "Number of currently active pipeline runs",
		}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry attempts",
		}, []string{"operation"}),
		FetchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "email_fetch_duration_seconds",
			Help:      "Time spent fetching attachments from the mailbox",
			Buckets:   prometheus.DefBuckets,
		}),
		ExtractTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      "Time spent extracting a single document",
			Buckets:   prometheus.DefBuckets,
		}),
		InsertTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_insert_duration_seconds",
			Help:      "Time spent inserting an invoice into the database",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RunStarted() {
	m.ActiveRuns.Inc()
}

func (m *Metrics) RunFinished(outcome string, _ time.Duration) {
	m.ActiveRuns.Dec()
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ItemProcessed(status string, d time.Duration) {
	m.InvoicesProcessed.WithLabelValues(status).Inc()
	m.ProcessingDuration.Observe(d.Seconds())
}

func (m *Metrics) ValidationFailed(check string) {
	m.ValidationFailures.WithLabelValues(check).Inc()
}

func (m *Metrics) RetryAttempt(operation string) {
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

func (m *Metrics) FetchDuration(d time.Duration) {
	m.FetchTime.Observe(d.Seconds())
}

func (m *Metrics) ExtractDuration(d time.Duration) {
	m.ExtractTime.Observe(d.Seconds())
}

func (m *Metrics) StoreDuration(d time.Duration) {
	m.InsertTime.Observe(d.Seconds())
}

// Handler exposes the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards every observation
type Nop struct{}

func (Nop) RunStarted()                         {}
func (Nop) RunFinished(string, time.Duration)   {}
func (Nop) ItemProcessed(string, time.Duration) {}
func (Nop) ValidationFailed(string)             {}
func (Nop) RetryAttempt(string)                 {}
func (Nop) FetchDuration(time.Duration)         {}
func (Nop) ExtractDuration(time.Duration)       {}
func (Nop) StoreDuration(time.Duration)         {}
