package usecase

import (
	"context"
	"fmt"

	"UniAD/internal/domain/models"
	domsvc "UniAD/internal/domain/service"
	"UniAD/internal/services/aggregation"
)

// Pipeline runs strategy selection, detection and optional aggregation for a
// single request. It holds no mutable state.
type Pipeline struct {
	strategies domsvc.StrategyResolver
}

func NewPipeline(strategies domsvc.StrategyResolver) *Pipeline {
	return &Pipeline{strategies: strategies}
}

// Run produces the final flag series for in. Errors from the strategy are
// wrapped, never replaced, so errors.Is keeps working for callers.
func (p *Pipeline) Run(ctx context.Context, in models.DetectionInput) (models.DetectionResult, error) {
	strategy, err := p.strategies.Get(in.Kind)
	if err != nil {
		return models.DetectionResult{}, err
	}
	if in.Params == nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %s requires parameters", models.ErrInvalidInput, in.Kind)
	}
	if in.Params.Kind() != in.Kind {
		return models.DetectionResult{}, fmt.Errorf("%w: %s parameters given for %s", models.ErrInvalidInput, in.Params.Kind(), in.Kind)
	}
	if strategy.RequiresTraining() && in.Training == nil {
		return models.DetectionResult{}, fmt.Errorf("%w: %s requires a training series", models.ErrInvalidInput, in.Kind)
	}

	flags, err := strategy.Detect(ctx, in.Training, in.Scoring, in.Params)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("detect %s: %w", in.Kind, err)
	}
	if !flags.CoIndexed(in.Scoring) {
		return models.DetectionResult{}, fmt.Errorf("detect %s: strategy returned %d flags not aligned with %d scoring points", in.Kind, flags.Len(), in.Scoring.Len())
	}

	res := models.DetectionResult{Kind: in.Kind, Flags: flags, Raw: flags.Flagged()}
	if !in.Aggregation.Enabled() {
		return res, nil
	}
	agg, err := aggregation.AggregateMode(flags, in.Aggregation.Window, in.Aggregation.Mode)
	if err != nil {
		return models.DetectionResult{}, fmt.Errorf("aggregate %s: %w", in.Kind, err)
	}
	res.Flags = agg
	return res, nil
}
