package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"UniAD/internal/domain/models"
	domsvc "UniAD/internal/domain/service"
)

type fakeMetrics struct {
	mu         sync.Mutex
	detections map[string]int // kind/outcome
	errors     map[string]int
	raw, kept  int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{detections: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordDetection(kind, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections[kind+"/"+outcome]++
}

func (m *fakeMetrics) RecordFlags(_ string, raw, kept int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw += raw
	m.kept += kept
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

type fakeAudit struct {
	mu   sync.Mutex
	runs []models.DetectionRun
	err  error
}

func (a *fakeAudit) Init(context.Context) error   { return nil }
func (a *fakeAudit) Health(context.Context) error { return nil }
func (a *fakeAudit) Close() error                 { return nil }

func (a *fakeAudit) SaveRun(_ context.Context, run models.DetectionRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, run)
	return a.err
}

type fakeCache struct {
	m map[string][]byte
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	b, ok := c.m[key]
	return b, ok
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte) { c.m[key] = value }

type fakePublisher struct {
	events []models.DetectionEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, ev models.DetectionEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

// stubStrategy returns a canned result and counts calls.
type stubStrategy struct {
	kind     models.StrategyKind
	training bool
	detect   func(ctx context.Context, scoring models.TimeSeries) (models.FlagSeries, error)
	calls    int
}

func (s *stubStrategy) Kind() models.StrategyKind { return s.kind }
func (s *stubStrategy) RequiresTraining() bool    { return s.training }

func (s *stubStrategy) Detect(ctx context.Context, _ *models.TimeSeries, scoring models.TimeSeries, _ models.StrategyParams) (models.FlagSeries, error) {
	s.calls++
	return s.detect(ctx, scoring)
}

type stubResolver map[models.StrategyKind]domsvc.Strategy

func (r stubResolver) Get(kind models.StrategyKind) (domsvc.Strategy, error) {
	s, ok := r[kind]
	if !ok {
		return nil, models.ErrInvalidInput
	}
	return s, nil
}

func seriesAt(t *testing.T, secs []int64, values []float64) models.TimeSeries {
	t.Helper()
	points := make([]models.TimePoint, len(secs))
	for i, s := range secs {
		points[i] = models.TimePoint{Timestamp: time.Unix(s, 0).UTC(), Value: values[i]}
	}
	s, err := models.NewTimeSeries(points)
	require.NoError(t, err)
	return s
}

func float(v float64) *float64 { return &v }
