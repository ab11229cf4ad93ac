package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Endpoint holds transport-level counters that sit outside the detection
// Recorder: throttled requests and open websocket sessions.
type Endpoint struct {
	RateLimited *prometheus.CounterVec
	WSSessions  prometheus.Gauge
	WSFrames    *prometheus.CounterVec
}

func NewEndpoint(reg prometheus.Registerer) *Endpoint {
	f := promauto.With(reg)
	return &Endpoint{
		RateLimited: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "uniad",
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		WSSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "uniad",
				Subsystem: "ws",
				Name:      "sessions",
				Help:      "Open websocket detection sessions",
			},
		),
		WSFrames: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "uniad",
				Subsystem: "ws",
				Name:      "frames_total",
				Help:      "Websocket frames by direction",
			},
			[]string{"direction"},
		),
	}
}
