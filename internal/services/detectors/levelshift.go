package detectors

import (
	"context"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
)

// LevelShift compares the median of the window ahead of each point with the
// median of the window behind it. The band is fitted on the scoring series.
type LevelShift struct{}

func NewLevelShift() *LevelShift { return &LevelShift{} }

func (*LevelShift) Kind() models.StrategyKind { return models.KindLevelShift }

func (*LevelShift) RequiresTraining() bool { return false }

func (l *LevelShift) Detect(ctx context.Context, _ *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error) {
	lp, err := paramsAs[models.LevelShiftParams](models.KindLevelShift, params)
	if err != nil {
		return models.FlagSeries{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.FlagSeries{}, err
	}

	ts := scoring.Timestamps()
	values := scoring.Values()
	ahead := rollingMedian(values, leadingSpans(ts, lp.Window))
	behind := rollingMedian(values, trailingSpans(ts, lp.Window))
	scores := make([]float64, len(values))
	for i := range scores {
		scores[i] = ahead[i] - behind[i]
	}

	b, err := fitBand(models.KindLevelShift, lp.Window, scores, lp.C)
	if err != nil {
		return models.FlagSeries{}, err
	}
	flags := make([]bool, len(scores))
	for i, d := range scores {
		flags[i] = b.outside(d)
	}
	return models.FlagsFor(scoring, flags)
}

var _ service.Strategy = (*LevelShift)(nil)
