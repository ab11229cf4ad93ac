package models

import (
	"fmt"
	"time"
)

// StrategyKind selects one of the supported detection algorithms.
type StrategyKind string

const (
	KindPersist         StrategyKind = "persist"         // deviation from a baseline learned on a training series
	KindThreshold       StrategyKind = "threshold"       // static high/low bounds
	KindLevelShift      StrategyKind = "levelshift"      // step change between trailing and leading windows
	KindVolatilityShift StrategyKind = "volatilityshift" // increase of local dispersion
)

// Kinds lists every supported kind in a stable order.
func Kinds() []StrategyKind {
	return []StrategyKind{KindPersist, KindThreshold, KindLevelShift, KindVolatilityShift}
}

// ParseStrategyKind converts a raw name into a kind.
func ParseStrategyKind(s string) (StrategyKind, error) {
	k := StrategyKind(s)
	switch k {
	case KindPersist, KindThreshold, KindLevelShift, KindVolatilityShift:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidInput, s)
}

// StrategyParams is the per-kind parameter payload.
type StrategyParams interface {
	Kind() StrategyKind
	Validate() error
}

// AdaptiveParams configures the persist strategy.
type AdaptiveParams struct {
	C      float64
	Window time.Duration
}

func (AdaptiveParams) Kind() StrategyKind { return KindPersist }

func (p AdaptiveParams) Validate() error { return validateWindowed(KindPersist, p.C, p.Window) }

// ThresholdParams configures static bounds. A nil bound disables that side.
type ThresholdParams struct {
	High *float64
	Low  *float64
}

func (ThresholdParams) Kind() StrategyKind { return KindThreshold }

func (ThresholdParams) Validate() error { return nil }

// LevelShiftParams configures the level shift strategy.
type LevelShiftParams struct {
	C      float64
	Window time.Duration
}

func (LevelShiftParams) Kind() StrategyKind { return KindLevelShift }

func (p LevelShiftParams) Validate() error { return validateWindowed(KindLevelShift, p.C, p.Window) }

// VolatilityShiftParams configures the volatility shift strategy.
type VolatilityShiftParams struct {
	C      float64
	Window time.Duration
}

func (VolatilityShiftParams) Kind() StrategyKind { return KindVolatilityShift }

func (p VolatilityShiftParams) Validate() error {
	return validateWindowed(KindVolatilityShift, p.C, p.Window)
}

func validateWindowed(kind StrategyKind, c float64, window time.Duration) error {
	if window <= 0 {
		return fmt.Errorf("%w: %s window must be positive, got %s", ErrInvalidInput, kind, window)
	}
	if c < 0 {
		return fmt.Errorf("%w: %s sensitivity must not be negative, got %g", ErrInvalidInput, kind, c)
	}
	return nil
}

// AnchorMode decides where an aggregation cluster is anchored.
type AnchorMode string

const (
	// AnchorKept measures every gap from the last kept flag.
	AnchorKept AnchorMode = "anchored"
	// AnchorChained measures every gap from the previous raw flag.
	AnchorChained AnchorMode = "chained"
)

// ParseAnchorMode maps "" to AnchorKept.
func ParseAnchorMode(s string) (AnchorMode, error) {
	switch AnchorMode(s) {
	case "", AnchorKept:
		return AnchorKept, nil
	case AnchorChained:
		return AnchorChained, nil
	}
	return "", fmt.Errorf("%w: unknown aggregate mode %q", ErrInvalidInput, s)
}

// AggregationSpec is the optional post-processing step. A zero window
// disables aggregation.
type AggregationSpec struct {
	Window time.Duration
	Mode   AnchorMode
}

// Enabled reports whether flags should be aggregated.
func (a AggregationSpec) Enabled() bool { return a.Window > 0 }
