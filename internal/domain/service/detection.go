package service

import (
	"context"

	"UniAD/internal/domain/models"
)

// Strategy turns a scoring series into one anomaly flag per timestamp.
// Implementations are stateless and safe for concurrent use.
type Strategy interface {
	Kind() models.StrategyKind
	// RequiresTraining reports whether Detect needs a non-nil training series.
	RequiresTraining() bool
	Detect(ctx context.Context, training *models.TimeSeries, scoring models.TimeSeries, params models.StrategyParams) (models.FlagSeries, error)
}

// StrategyResolver looks a strategy up by kind.
type StrategyResolver interface {
	Get(kind models.StrategyKind) (Strategy, error)
}
