package http

import (
	"net/http"
	"time"

	xutil "QuantPulse/pkg/util"
)

// ParseIntDefault parses s or returns def if empty or invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTime accepts RFC3339, zone-less ISO 8601 (UTC) and unix epochs.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseTimeRange parses optional start and end parameters. Invalid values
// produce a 400 AppError naming the field.
func ParseTimeRange(start, end string) (from, to time.Time, err error) {
	if start != "" {
		var ok bool
		if from, ok = xutil.ParseTime(start); !ok {
			return from, to, NewAppError("ERR_INVALID_TIME", "start", "start must be an ISO 8601 timestamp", http.StatusBadRequest)
		}
	}
	if end != "" {
		var ok bool
		if to, ok = xutil.ParseTime(end); !ok {
			return from, to, NewAppError("ERR_INVALID_TIME", "end", "end must be an ISO 8601 timestamp", http.StatusBadRequest)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, NewAppError("ERR_INVALID_RANGE", "end", "end must not be before start", http.StatusBadRequest)
	}
	return from, to, nil
}
