package aggregation

import (
	"fmt"
	"time"

	"UniAD/internal/domain/models"
)

// Aggregate collapses flags that fall within window of their cluster anchor,
// using the default anchor-on-kept mode.
func Aggregate(flags models.FlagSeries, window time.Duration) (models.FlagSeries, error) {
	return AggregateMode(flags, window, models.AnchorKept)
}

// AggregateMode collapses nearby flags in a single forward pass. A flag at t
// is cleared when t minus the anchor is at most window. In AnchorKept mode
// the anchor only moves to flags that survive; in AnchorChained mode it moves
// to every raw flag. Unflagged points are never touched and the input is not
// modified.
func AggregateMode(flags models.FlagSeries, window time.Duration, mode models.AnchorMode) (models.FlagSeries, error) {
	if window <= 0 {
		return models.FlagSeries{}, fmt.Errorf("%w: aggregation window must be positive, got %s", models.ErrInvalidInput, window)
	}
	switch mode {
	case "", models.AnchorKept, models.AnchorChained:
	default:
		return models.FlagSeries{}, fmt.Errorf("%w: unknown aggregate mode %q", models.ErrInvalidInput, mode)
	}

	index := flags.Timestamps()
	out := flags.Flags()

	var (
		anchor time.Time
		seen   bool
	)
	for i, flagged := range out {
		if !flagged {
			continue
		}
		t := index[i]
		if seen && t.Sub(anchor) <= window {
			out[i] = false
			if mode == models.AnchorChained {
				anchor = t
			}
			continue
		}
		anchor = t
		seen = true
	}
	return models.NewFlagSeries(index, out)
}
