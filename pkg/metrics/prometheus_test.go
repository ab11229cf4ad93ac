package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordDetection("persist", "ok", 0.02)
	r.RecordDetection("persist", "ok", 0.03)
	r.RecordDetection("threshold", "invalid_input", 0.001)
	r.RecordFlags("persist", 4, 1)
	r.RecordError("kafka_publish")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.detections.WithLabelValues("persist", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.detections.WithLabelValues("threshold", "invalid_input")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.flags.WithLabelValues("persist", "raw")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.flags.WithLabelValues("persist", "kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("kafka_publish")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}
