package di

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"UniAD/internal/domain/models"
	domsvc "UniAD/internal/domain/service"
	"UniAD/internal/usecase"
	"UniAD/pkg/config"
	applogger "UniAD/pkg/logger"
	"UniAD/pkg/metrics"
)

// stalledStrategy never finishes on its own.
type stalledStrategy struct{}

func (stalledStrategy) Kind() models.StrategyKind { return models.KindThreshold }
func (stalledStrategy) RequiresTraining() bool    { return false }
func (stalledStrategy) Detect(ctx context.Context, _ *models.TimeSeries, _ models.TimeSeries, _ models.StrategyParams) (models.FlagSeries, error) {
	<-ctx.Done()
	return models.FlagSeries{}, ctx.Err()
}

type stalledResolver struct{}

func (stalledResolver) Get(models.StrategyKind) (domsvc.Strategy, error) {
	return stalledStrategy{}, nil
}

func TestDetectionServiceUsesDetectionTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Server.WriteTimeout = time.Hour
	cfg.Detection.Timeout = 20 * time.Millisecond
	svc := ProvideDetectionService(cfg, stalledResolver{}, metrics.NewWithRegistry(prometheus.NewRegistry()), nil, nil, applogger.Nop())

	var job models.DetectionJob
	require.NoError(t, json.Unmarshal([]byte(`{"id": "j-1", "kind": "threshold", "score_data": {"0": 5}, "parameters": {"high": 1}}`), &job))

	done := make(chan models.DetectionEvent, 1)
	go func() { done <- svc.RunJob(context.Background(), usecase.SourceKafka, job) }()

	select {
	case ev := <-done:
		require.NotNil(t, ev.Error)
		assert.Equal(t, usecase.CodeCanceled, ev.Error.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("job outlived detection.timeout")
	}
}

func TestFrameLimitFollowsBodyLimit(t *testing.T) {
	assert.Equal(t, int64(16_000_000), frameLimit("16M"))
	assert.Equal(t, int64(2<<20), frameLimit("2MiB"))
	assert.Zero(t, frameLimit(""))
	assert.Zero(t, frameLimit("lots"))
}
