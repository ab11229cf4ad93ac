package detectors

import (
	"context"

	"UniAD/internal/domain/models"
	"UniAD/internal/domain/service"
)

// Threshold flags values strictly above High or strictly below Low.
type Threshold struct{}

func NewThreshold() *Threshold { return &Threshold{} }

func (*Threshold) Kind() models.StrategyKind { return models.KindThreshold }

func (*Threshold) RequiresTraining() bool { return false }

func (t *Threshold) Detect(_ context.Context, _ *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error) {
	tp, err := paramsAs[models.ThresholdParams](models.KindThreshold, params)
	if err != nil {
		return models.FlagSeries{}, err
	}
	flags := make([]bool, scoring.Len())
	for i := range flags {
		v := scoring.At(i).Value
		flags[i] = (tp.High != nil && v > *tp.High) || (tp.Low != nil && v < *tp.Low)
	}
	return models.FlagsFor(scoring, flags)
}

var _ service.Strategy = (*Threshold)(nil)
