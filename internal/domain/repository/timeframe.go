package repository

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s  Timeframe = "1s"
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

var tfDurations = map[Timeframe]time.Duration{
	TF1s:  time.Second,
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF1d:  24 * time.Hour,
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := tfDurations[tf]
	return ok
}

// Duration returns the bucket width, or zero for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration { return tfDurations[tf] }

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// ParseTimeframe is the strict variant of NormalizeTimeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// ParseTimeframes parses a list, failing on the first unknown entry.
func ParseTimeframes(ss []string) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(ss))
	for _, s := range ss {
		tf, err := ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}
