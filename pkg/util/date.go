package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseEpochMillis parses a millisecond epoch key such as "1382400000000".
// Integral float spellings ("1382400000000.0") are accepted too.
func ParseEpochMillis(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return time.Time{}, fmt.Errorf("timestamp %q is not an integer millisecond epoch", s)
	}
	// float64(math.MaxInt64) rounds up to 1<<63, which does not fit.
	if f >= 1<<63 || f < math.MinInt64 {
		return time.Time{}, fmt.Errorf("timestamp %q out of range", s)
	}
	return time.UnixMilli(int64(f)).UTC(), nil
}

// FormatEpochMillis renders t as a millisecond epoch key.
func FormatEpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

var windowRe = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)?\s*([A-Za-z]+)$`)

var windowUnits = map[string]time.Duration{
	"D":   24 * time.Hour,
	"d":   24 * time.Hour,
	"H":   time.Hour,
	"h":   time.Hour,
	"T":   time.Minute,
	"min": time.Minute,
	"m":   time.Minute,
	"S":   time.Second,
	"s":   time.Second,
	"L":   time.Millisecond,
	"ms":  time.Millisecond,
	"U":   time.Microsecond,
	"us":  time.Microsecond,
	"N":   time.Nanosecond,
	"ns":  time.Nanosecond,
}

// ParseWindow parses offset aliases like "500S", "15T", "28D" or "10min".
// A bare number is seconds; Go durations ("1h30m") are accepted as well.
// The result is always positive.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty window")
	}
	d, err := parseWindow(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("window %q must be positive", s)
	}
	return d, nil
}

func parseWindow(s string) (time.Duration, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return scale(n, time.Second, s)
	}
	if m := windowRe.FindStringSubmatch(s); m != nil {
		unit, ok := windowUnits[m[2]]
		if ok {
			n := 1.0
			if m[1] != "" {
				v, err := strconv.ParseFloat(m[1], 64)
				if err != nil {
					return 0, fmt.Errorf("window %q: %w", s, err)
				}
				n = v
			}
			return scale(n, unit, s)
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("window %q is not a duration", s)
	}
	return d, nil
}

func scale(n float64, unit time.Duration, raw string) (time.Duration, error) {
	v := n * float64(unit)
	if math.IsNaN(v) || v > math.MaxInt64 {
		return 0, fmt.Errorf("window %q out of range", raw)
	}
	return time.Duration(v), nil
}
