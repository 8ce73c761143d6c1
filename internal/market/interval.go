package market

import (
	"fmt"
	"time"
)

// Interval is a resampling granularity for OHLCV bars.
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
)

// intervalDurations maps each supported interval to its bucket width.
var intervalDurations = map[Interval]time.Duration{
	Interval1s:  time.Second,
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
}

// Intervals returns all supported intervals, shortest first.
func Intervals() []Interval {
	return []Interval{Interval1s, Interval1m, Interval5m, Interval15m, Interval1h}
}

// IsValid checks if the Interval is one of the supported granularities.
func (iv Interval) IsValid() bool {
	_, ok := intervalDurations[iv]
	return ok
}

// Duration returns the bucket width of the interval.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

// Truncate floors t to the start of the bucket containing it.
func (iv Interval) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(iv.Duration())
}

// ParseInterval parses a string into a valid Interval.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if !iv.IsValid() {
		return "", fmt.Errorf("invalid interval: %s", s)
	}
	return iv, nil
}
