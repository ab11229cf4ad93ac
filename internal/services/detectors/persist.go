package detectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
)

// Persist flags points that deviate from the median of the preceding window
// by more than the training series ever did, scaled by C.
type Persist struct{}

func NewPersist() *Persist { return &Persist{} }

func (*Persist) Kind() models.StrategyKind { return models.KindPersist }

func (*Persist) RequiresTraining() bool { return true }

func (p *Persist) Detect(ctx context.Context, training *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error) {
	ap, err := paramsAs[models.AdaptiveParams](models.KindPersist, params)
	if err != nil {
		return models.FlagSeries{}, err
	}
	if training == nil {
		return models.FlagSeries{}, fmt.Errorf("%w: %s requires a training series", models.ErrInvalidInput, models.KindPersist)
	}
	if err := ctx.Err(); err != nil {
		return models.FlagSeries{}, err
	}

	b, err := fitBand(models.KindPersist, ap.Window, deviations(*training, ap.Window), ap.C)
	if err != nil {
		return models.FlagSeries{}, fmt.Errorf("fit on training series: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return models.FlagSeries{}, err
	}

	scores := deviations(scoring, ap.Window)
	flags := make([]bool, len(scores))
	for i, d := range scores {
		flags[i] = b.above(d)
	}
	return models.FlagsFor(scoring, flags)
}

// deviations is |x_t - median(trailing window of t)|.
func deviations(s models.TimeSeries, w time.Duration) []float64 {
	values := s.Values()
	med := rollingMedian(values, trailingSpans(s.Timestamps(), w))
	out := make([]float64, len(values))
	for i, m := range med {
		out[i] = math.Abs(values[i] - m)
	}
	return out
}

var _ service.Strategy = (*Persist)(nil)
