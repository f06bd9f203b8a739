package ginserver

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errDateRequired = errors.New("start and end dates are required")

// parseDate accepts RFC 3339 timestamps and plain dates. A timestamp keeps its
// offset so the booked day is the calendar date the caller wrote; plain dates
// are midnight UTC.
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	if strings.TrimSpace(startRaw) == "" || strings.TrimSpace(endRaw) == "" {
		return time.Time{}, time.Time{}, errDateRequired
	}
	start, ok := parseDate(startRaw)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("start must be a date, got %q", startRaw)
	}
	end, ok := parseDate(endRaw)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("end must be a date, got %q", endRaw)
	}
	return start, end, nil
}
