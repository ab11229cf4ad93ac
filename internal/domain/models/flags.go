package models

import (
	"fmt"
	"time"
)

// FlagSeries is a boolean anomaly marker per timestamp. Values are immutable:
// constructors and accessors copy.
type FlagSeries struct {
	index []time.Time
	flags []bool
}

// NewFlagSeries builds a flag series over an explicit index. The index must be
// strictly increasing and match flags in length.
func NewFlagSeries(index []time.Time, flags []bool) (FlagSeries, error) {
	if len(index) != len(flags) {
		return FlagSeries{}, fmt.Errorf("%w: %d timestamps for %d flags", ErrInvalidInput, len(index), len(flags))
	}
	for i := 1; i < len(index); i++ {
		if !index[i].After(index[i-1]) {
			return FlagSeries{}, fmt.Errorf("%w: flag index not increasing at %d", ErrInvalidInput, i)
		}
	}
	ix := make([]time.Time, len(index))
	copy(ix, index)
	fl := make([]bool, len(flags))
	copy(fl, flags)
	return FlagSeries{index: ix, flags: fl}, nil
}

// FlagsFor co-indexes flags with an already validated series.
func FlagsFor(s TimeSeries, flags []bool) (FlagSeries, error) {
	if len(flags) != s.Len() {
		return FlagSeries{}, fmt.Errorf("%w: %d flags for %d points", ErrInvalidInput, len(flags), s.Len())
	}
	fl := make([]bool, len(flags))
	copy(fl, flags)
	return FlagSeries{index: s.Timestamps(), flags: fl}, nil
}

// Len returns the number of timestamps.
func (f FlagSeries) Len() int { return len(f.index) }

// Timestamp returns the i-th timestamp.
func (f FlagSeries) Timestamp(i int) time.Time { return f.index[i] }

// Flag reports whether the i-th timestamp is anomalous.
func (f FlagSeries) Flag(i int) bool { return f.flags[i] }

// Timestamps returns a copy of the index.
func (f FlagSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(f.index))
	copy(out, f.index)
	return out
}

// Flags returns a copy of the flags.
func (f FlagSeries) Flags() []bool {
	out := make([]bool, len(f.flags))
	copy(out, f.flags)
	return out
}

// Flagged counts the anomalous timestamps.
func (f FlagSeries) Flagged() int {
	n := 0
	for _, v := range f.flags {
		if v {
			n++
		}
	}
	return n
}

// CoIndexed reports whether f covers exactly the timestamps of s.
func (f FlagSeries) CoIndexed(s TimeSeries) bool {
	if len(f.index) != s.Len() {
		return false
	}
	for i, t := range f.index {
		if !t.Equal(s.At(i).Timestamp) {
			return false
		}
	}
	return true
}

// Equal compares index and flags.
func (f FlagSeries) Equal(o FlagSeries) bool {
	if len(f.index) != len(o.index) {
		return false
	}
	for i := range f.index {
		if !f.index[i].Equal(o.index[i]) || f.flags[i] != o.flags[i] {
			return false
		}
	}
	return true
}
