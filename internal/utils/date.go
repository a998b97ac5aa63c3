package utils

import (
	"fmt"
	"strconv"
	"time"
)

// ParseSinceDate parses a window start in one of three forms:
//   - relative days: "7d"
//   - relative hours: "12h"
//   - absolute date: "2025-12-15" (YYYY-MM-DD, UTC midnight)
func ParseSinceDate(since string) (time.Time, error) {
	return parseSince(since, time.Now())
}

func parseSince(since string, now time.Time) (time.Time, error) {
	if since == "" {
		return time.Time{}, fmt.Errorf("since date cannot be empty")
	}

	switch unit := since[len(since)-1]; unit {
	case 'd', 'h':
		n, err := strconv.Atoi(since[:len(since)-1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid relative date format '%s': expected format like '7d' or '12h'", since)
		}
		if n < 0 {
			return time.Time{}, fmt.Errorf("relative window cannot be negative: %s", since)
		}
		if unit == 'd' {
			return now.AddDate(0, 0, -n), nil
		}
		return now.Add(-time.Duration(n) * time.Hour), nil
	}

	parsed, err := time.Parse("2006-01-02", since)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format '%s': expected 'YYYY-MM-DD' or relative format like '7d'", since)
	}

	return parsed, nil
}

// DaysAgo returns the start of a window covering the last days days. Zero or
// negative days means no window.
func DaysAgo(days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return time.Now().AddDate(0, 0, -days)
}
