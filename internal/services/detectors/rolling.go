package detectors

import (
	"math"
	"sort"
	"time"
)

// span is the half-open index range [lo, hi) of a window.
type span struct {
	lo, hi int
}

func (s span) size() int { return s.hi - s.lo }

// trailingSpans returns, for every i, the observations in [t_i - w, t_i).
func trailingSpans(ts []time.Time, w time.Duration) []span {
	out := make([]span, len(ts))
	lo := 0
	for i, t := range ts {
		start := t.Add(-w)
		for lo < i && ts[lo].Before(start) {
			lo++
		}
		out[i] = span{lo: lo, hi: i}
	}
	return out
}

// leadingSpans returns, for every i, the observations in [t_i, t_i + w).
func leadingSpans(ts []time.Time, w time.Duration) []span {
	out := make([]span, len(ts))
	hi := 0
	for i, t := range ts {
		end := t.Add(w)
		if hi < i {
			hi = i
		}
		for hi < len(ts) && ts[hi].Before(end) {
			hi++
		}
		out[i] = span{lo: i, hi: hi}
	}
	return out
}

// sortedWindow keeps the values of a sliding window in ascending order.
type sortedWindow struct {
	vals []float64
}

func (w *sortedWindow) add(v float64) {
	i := sort.SearchFloat64s(w.vals, v)
	w.vals = append(w.vals, 0)
	copy(w.vals[i+1:], w.vals[i:])
	w.vals[i] = v
}

func (w *sortedWindow) remove(v float64) {
	i := sort.SearchFloat64s(w.vals, v)
	if i < len(w.vals) && w.vals[i] == v {
		w.vals = append(w.vals[:i], w.vals[i+1:]...)
	}
}

// rollingMedian evaluates the median of each span. Spans must have
// non-decreasing bounds; empty spans yield NaN.
func rollingMedian(values []float64, spans []span) []float64 {
	out := make([]float64, len(spans))
	var win sortedWindow
	lo, hi := 0, 0
	for i, s := range spans {
		for hi < s.hi {
			win.add(values[hi])
			hi++
		}
		for lo < s.lo {
			win.remove(values[lo])
			lo++
		}
		if s.size() == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = medianSorted(win.vals)
	}
	return out
}

// rollingStd evaluates the sample standard deviation of each span.
func rollingStd(values []float64, spans []span) []float64 {
	out := make([]float64, len(spans))
	for i, s := range spans {
		out[i] = sampleStd(values[s.lo:s.hi])
	}
	return out
}
