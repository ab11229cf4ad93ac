package detectors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"UniAD/internal/domain/models"
)

// quantile interpolates linearly between closest ranks of an ascending
// slice: h = (n-1)p.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n%2 == 1:
		return sorted[n/2]
	default:
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
}

// sampleStd is the n-1 standard deviation, NaN below two values.
func sampleStd(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.StdDev(values, nil)
}

// band is the accepted range of a score; scores outside it are anomalous.
type band struct {
	lower, upper float64
}

// fitBand derives Q1 - c*IQR and Q3 + c*IQR from the defined scores.
func fitBand(kind models.StrategyKind, window time.Duration, scores []float64, c float64) (band, error) {
	finite := make([]float64, 0, len(scores))
	for _, s := range scores {
		if !math.IsNaN(s) {
			finite = append(finite, s)
		}
	}
	if len(finite) < 2 {
		return band{}, fmt.Errorf("%w: %s with window %s yields %d scores from %d points, need at least 2",
			models.ErrInsufficientData, kind, window, len(finite), len(scores))
	}
	sort.Float64s(finite)
	q1 := quantile(finite, 0.25)
	q3 := quantile(finite, 0.75)
	iqr := q3 - q1
	return band{lower: q1 - c*iqr, upper: q3 + c*iqr}, nil
}

func (b band) above(s float64) bool { return !math.IsNaN(s) && s > b.upper }

func (b band) outside(s float64) bool { return !math.IsNaN(s) && (s > b.upper || s < b.lower) }
