package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestProducerPublishMarshalsJSON(t *testing.T) {
	w := &captureWriter{}
	p := NewProducerWithWriter(w, WithProducerMetrics(prometheus.NewRegistry()))

	err := p.Publish(context.Background(), "detection.results", []byte("job-1"),
		map[string]int{"kept": 2}, Headers(map[string]string{"trace_id": "t-1"})...)
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "detection.results", m.Topic)
	assert.Equal(t, "job-1", string(m.Key))
	assert.Equal(t, "t-1", ExtractTraceID(m))

	var body map[string]int
	require.NoError(t, json.Unmarshal(m.Value, &body))
	assert.Equal(t, 2, body["kept"])
}

func TestProducerPublishReturnsWriterError(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewProducerWithWriter(&captureWriter{err: errors.New("broker down")}, WithProducerMetrics(reg))
	err := p.Publish(context.Background(), "t", nil, []byte("x"))
	assert.ErrorContains(t, err, "publish to t")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("t", "error")))
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad json")
	err := fmt.Errorf("handle: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}

func TestHookChainThreadsContext(t *testing.T) {
	var order []string
	first := HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "first") }}
	second := HookFuncs{After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "second") }}
	chain := NewHookChain(TraceHook(), first, nil, second)

	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := chain.BeforeHandle(context.Background(), "topic", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFromContext(ctx))
	_, ok := StartTimeFromContext(ctx)
	assert.True(t, ok)

	chain.AfterHandle(ctx, "topic", km, nil, nil)
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestHookChainRecoversPanics(t *testing.T) {
	var seen error
	boom := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("boom")
	}}
	watcher := HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { seen = err }}

	_, _, _, err := NewHookChain(boom, watcher).BeforeHandle(context.Background(), "topic", kafka.Message{}, nil)
	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, err, seen)
}

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(100, 1000, attempt)
		assert.Greater(t, int64(d), int64(0))
		assert.LessOrEqual(t, int64(d), int64(1000))
	}
}

func TestHeadersAreSortedByKey(t *testing.T) {
	h := Headers(map[string]string{"status": "ok", "kind": "threshold", "trace_id": "t"})
	require.Len(t, h, 3)
	assert.Equal(t, []string{"kind", "status", "trace_id"}, []string{h[0].Key, h[1].Key, h[2].Key})
}

func TestProducerMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewProducerWithWriter(&captureWriter{}, WithProducerMetrics(reg))
	b := NewProducerWithWriter(&captureWriter{}, WithProducerMetrics(reg))
	require.NoError(t, a.Publish(context.Background(), "t", nil, "x"))
	require.NoError(t, b.Publish(context.Background(), "t", nil, "y"))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.metrics.messages.WithLabelValues("t", "ok")))
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"", "gzip", "snappy", "lz4", "zstd"} {
		_, err := parseCompression(name)
		assert.NoError(t, err, name)
	}
	_, err := parseCompression("brotli")
	assert.Error(t, err)
}
