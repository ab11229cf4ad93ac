package models

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// TimePoint is a single scalar observation.
type TimePoint struct {
	Timestamp time.Time
	Value     float64
}

// TimeSeries is an ordered sequence of observations with strictly increasing
// timestamps. The zero value is an empty series.
type TimeSeries struct {
	points []TimePoint
}

// NewTimeSeries validates points as given: timestamps must already be
// strictly increasing and every value finite.
func NewTimeSeries(points []TimePoint) (TimeSeries, error) {
	cp := make([]TimePoint, len(points))
	copy(cp, points)
	if err := validatePoints(cp); err != nil {
		return TimeSeries{}, err
	}
	return TimeSeries{points: cp}, nil
}

// SortedTimeSeries orders points by timestamp before validating them. Two
// points on the same instant are rejected, never merged.
func SortedTimeSeries(points []TimePoint) (TimeSeries, error) {
	cp := make([]TimePoint, len(points))
	copy(cp, points)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].Timestamp.Before(cp[j].Timestamp) })
	if err := validatePoints(cp); err != nil {
		return TimeSeries{}, err
	}
	return TimeSeries{points: cp}, nil
}

func validatePoints(points []TimePoint) error {
	for i, p := range points {
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrInvalidInput, p.Timestamp.UTC().Format(time.RFC3339Nano))
		}
		if i > 0 && !p.Timestamp.After(points[i-1].Timestamp) {
			if p.Timestamp.Equal(points[i-1].Timestamp) {
				return fmt.Errorf("%w: duplicate timestamp %s", ErrInvalidInput, p.Timestamp.UTC().Format(time.RFC3339Nano))
			}
			return fmt.Errorf("%w: timestamps not increasing at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// Len returns the number of observations.
func (s TimeSeries) Len() int { return len(s.points) }

// At returns the i-th observation.
func (s TimeSeries) At(i int) TimePoint { return s.points[i] }

// Timestamps returns a copy of the index.
func (s TimeSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.points))
	for i, p := range s.points {
		out[i] = p.Timestamp
	}
	return out
}

// Values returns a copy of the observed values.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.points))
	for i, p := range s.points {
		out[i] = p.Value
	}
	return out
}
