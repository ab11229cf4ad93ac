package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UniAD/internal/services/detectors"
	pkgkafka "UniAD/pkg/kafka"
)

func newKafkaHandler(pub *fakePublisher, metrics *fakeMetrics) *KafkaDetectHandler {
	svc := NewDetectionService(NewPipeline(detectors.NewLocalRegistry()), DetectionServiceConfig{}, metrics, nil, nil, nil)
	return NewKafkaDetectHandler("detection.requests", svc, pub, metrics, nil)
}

func TestKafkaDetectHandlerPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	h := newKafkaHandler(pub, newFakeMetrics())
	assert.Equal(t, "detection.requests", h.Topic())

	err := h.Handle(context.Background(), []byte(`{"id":"j1","kind":"threshold","score_data":{"0":5,"1000":15},"parameters":{"high":10}}`))
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "j1", pub.events[0].ID)
	assert.Equal(t, map[string]bool{"0": false, "1000": true}, pub.events[0].AnomalyList)
}

func TestKafkaDetectHandlerInvalidJobYieldsErrorEvent(t *testing.T) {
	pub := &fakePublisher{}
	h := newKafkaHandler(pub, newFakeMetrics())

	err := h.Handle(context.Background(), []byte(`{"id":"j2","kind":"persist","score_data":{"0":1}}`))
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	require.NotNil(t, pub.events[0].Error)
	assert.Equal(t, CodeInvalidInput, pub.events[0].Error.Code)
}

func TestKafkaDetectHandlerMalformedPayloadIsPermanent(t *testing.T) {
	metrics := newFakeMetrics()
	h := newKafkaHandler(&fakePublisher{}, metrics)

	err := h.Handle(context.Background(), []byte(`not json`))
	require.Error(t, err)
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.Equal(t, 1, metrics.errors["consumer_unmarshal"])
}

func TestKafkaDetectHandlerPublishFailureIsRetryable(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	metrics := newFakeMetrics()
	h := newKafkaHandler(pub, metrics)

	err := h.Handle(context.Background(), []byte(`{"id":"j3","kind":"threshold","score_data":{"0":5}}`))
	require.Error(t, err)
	assert.False(t, pkgkafka.IsPermanent(err))
	assert.Contains(t, err.Error(), "j3")
	assert.Equal(t, 1, metrics.errors["event_publish"])
}
