package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domrepo "BrentShift/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	analyses     *prometheus.CounterVec
	analysisTime *prometheus.HistogramVec
	acceptance   *prometheus.GaugeVec
	changePoints *prometheus.GaugeVec
	ingested     *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

var _ domrepo.Metrics = (*Recorder)(nil)

// New registers the collectors on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		analyses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brentshift_analyses_total",
				Help: "Change-point analyses by final status",
			},
			[]string{"series", "status"},
		),
		analysisTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brentshift_analysis_duration_seconds",
				Help:    "Wall time of a complete analysis",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"series"},
		),
		acceptance: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "brentshift_sampler_acceptance_rate",
				Help: "Mean Metropolis acceptance rate of the last analysis",
			},
			[]string{"series"},
		),
		changePoints: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "brentshift_change_points",
				Help: "Change points reported by the last analysis",
			},
			[]string{"series"},
		),
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brentshift_prices_ingested_total",
				Help: "Price points written to the price store",
			},
			[]string{"series"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brentshift_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brentshift_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordAnalysis(series, status string, seconds float64) {
	r.analyses.WithLabelValues(series, status).Inc()
	r.analysisTime.WithLabelValues(series).Observe(seconds)
}

func (r *Recorder) RecordAcceptance(series string, rate float64) {
	r.acceptance.WithLabelValues(series).Set(rate)
}

func (r *Recorder) RecordChangePoints(series string, n int) {
	r.changePoints.WithLabelValues(series).Set(float64(n))
}

func (r *Recorder) RecordIngested(series string, n int) {
	r.ingested.WithLabelValues(series).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything; used by the CLI and tests.
type Nop struct{}

func (Nop) RecordAnalysis(string, string, float64) {}
func (Nop) RecordAcceptance(string, float64) {}
func (Nop) RecordChangePoints(string, int) {}
func (Nop) RecordIngested(string, int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
