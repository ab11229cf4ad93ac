package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	detections  *prometheus.CounterVec
	flags       *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the recorder's collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		detections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uniad_detections_total",
				Help: "Total number of detection runs by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		flags: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uniad_flags_total",
				Help: "Anomaly flags produced, before (raw) and after (kept) aggregation",
			},
			[]string{"kind", "stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uniad_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uniad_detection_duration_seconds",
				Help:    "Duration of detection runs in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
			[]string{"kind"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uniad_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordDetection counts a run and observes its duration.
func (r *Recorder) RecordDetection(kind, outcome string, seconds float64) {
	r.detections.WithLabelValues(kind, outcome).Inc()
	r.duration.WithLabelValues(kind).Observe(seconds)
}

// RecordFlags adds raw and kept flag counts.
func (r *Recorder) RecordFlags(kind string, raw, kept int) {
	r.flags.WithLabelValues(kind, "raw").Add(float64(raw))
	r.flags.WithLabelValues(kind, "kept").Add(float64(kept))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
