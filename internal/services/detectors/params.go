package detectors

import (
	"fmt"

	"UniAD/internal/domain/models"
)

// paramsAs asserts the payload type for kind and validates it.
func paramsAs[T models.StrategyParams](kind models.StrategyKind, p models.StrategyParams) (T, error) {
	var zero T
	v, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s expects %T parameters, got %T", models.ErrInvalidInput, kind, zero, p)
	}
	if err := v.Validate(); err != nil {
		return zero, err
	}
	return v, nil
}
