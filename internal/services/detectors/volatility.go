package detectors

import (
	"context"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
)

// VolatilityShift flags points where dispersion ahead rises above dispersion
// behind by more than the fitted band allows. Only increases are reported.
type VolatilityShift struct{}

func NewVolatilityShift() *VolatilityShift { return &VolatilityShift{} }

func (*VolatilityShift) Kind() models.StrategyKind { return models.KindVolatilityShift }

func (*VolatilityShift) RequiresTraining() bool { return false }

func (v *VolatilityShift) Detect(ctx context.Context, _ *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error) {
	vp, err := paramsAs[models.VolatilityShiftParams](models.KindVolatilityShift, params)
	if err != nil {
		return models.FlagSeries{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.FlagSeries{}, err
	}

	ts := scoring.Timestamps()
	values := scoring.Values()
	ahead := rollingStd(values, leadingSpans(ts, vp.Window))
	behind := rollingStd(values, trailingSpans(ts, vp.Window))
	scores := make([]float64, len(values))
	for i := range scores {
		scores[i] = ahead[i] - behind[i]
	}

	b, err := fitBand(models.KindVolatilityShift, vp.Window, scores, vp.C)
	if err != nil {
		return models.FlagSeries{}, err
	}
	flags := make([]bool, len(scores))
	for i, d := range scores {
		flags[i] = b.above(d)
	}
	return models.FlagsFor(scoring, flags)
}

var _ service.Strategy = (*VolatilityShift)(nil)
