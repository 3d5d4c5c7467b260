package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "renbridge"

// Metrics holds the submission metrics of the processor.
type Metrics struct {
	registry *prometheus.Registry

	SubmissionsTotal    *prometheus.CounterVec
	ActiveSubmissions   prometheus.Gauge
	ProgressUpdates     *prometheus.CounterVec
	SubmissionsFinished *prometheus.CounterVec
	GatewayPostErrors   prometheus.Counter
	Duration            *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of accepted submissions",
		}, []string{"chain"}),

		ActiveSubmissions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_submissions",
			Help:      "Number of submissions that are being submitted or waited for",
		}),

		ProgressUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_updates_total",
			Help:      "Total number of progress updates",
		}, []string{"chain", "status"}),

		SubmissionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_finished_total",
			Help:      "Total number of finished submissions by result",
		}, []string{"chain", "result"}),

		GatewayPostErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_post_errors_total",
			Help:      "Total number of progress updates that could not be posted to the gateway",
		}),

		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time from accepting a submission until it finishes",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"chain"}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.ActiveSubmissions,
		m.ProgressUpdates,
		m.SubmissionsFinished,
		m.GatewayPostErrors,
		m.Duration,
	)

	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
