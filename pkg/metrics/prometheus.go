package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	barsFetched *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	filled      *prometheus.CounterVec
	degraded    *prometheus.CounterVec
	turbulence  prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		barsFetched: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finprep_bars_fetched_total",
				Help: "Raw bars returned by a provider",
			},
			[]string{"provider"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finprep_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		filled: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finprep_filled_slots_total",
				Help: "Grid slots synthesized by the aligner",
			},
			[]string{"kind"},
		),
		degraded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finprep_degraded_tickers_total",
				Help: "Tickers with no valid close in the requested range",
			},
			[]string{"ticker"},
		),
		turbulence: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "finprep_last_turbulence",
				Help: "Turbulence score of the latest prepared timestamp",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finprep_operation_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordBarsFetched counts bars per provider. The ticker is left out of the
// labels to keep cardinality bounded.
func (r *Recorder) RecordBarsFetched(provider, _ string, n int) {
	r.barsFetched.WithLabelValues(provider).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordFilled(kind string, n int) {
	r.filled.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordDegradedTicker(ticker string) {
	r.degraded.WithLabelValues(ticker).Inc()
}

func (r *Recorder) RecordTurbulence(v float64) {
	r.turbulence.Set(v)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
