package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxEpochSeconds separates second and sub-second epochs. 1e11 seconds is in
// the year 5138, so anything larger is milliseconds (or finer).
const maxEpochSeconds = 1e11

// isoLayouts are tried in order for string timestamps
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp converts a gateway timestamp to epoch seconds. It accepts
// integer and float epochs (seconds or milliseconds), numeric strings,
// ISO-8601 strings and time.Time values. When the value cannot be resolved
// the result is nil and raw keeps a printable form of the input. It never
// fails.
func ParseTimestamp(v any) (sec *int64, raw string) {
	switch t := v.(type) {
	case nil:
		return nil, ""
	case int:
		return fromEpoch(int64(t)), ""
	case int32:
		return fromEpoch(int64(t)), ""
	case int64:
		return fromEpoch(t), ""
	case uint32:
		return fromEpoch(int64(t)), ""
	case float64:
		return fromFloat(t), ""
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return fromEpoch(n), ""
		}
		if f, err := t.Float64(); err == nil {
			return fromFloat(f), ""
		}
		return nil, t.String()
	case string:
		return parseTimestampString(t)
	case time.Time:
		if t.IsZero() {
			return nil, ""
		}
		s := t.Unix()
		return &s, ""
	case *time.Time:
		if t == nil {
			return nil, ""
		}
		return ParseTimestamp(*t)
	default:
		return nil, ""
	}
}

func parseTimestampString(s string) (*int64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ""
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts := fromEpoch(n); ts != nil {
			return ts, ""
		}
		return nil, s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if ts := fromFloat(f); ts != nil {
			return ts, ""
		}
		return nil, s
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.Unix()
			return &u, ""
		}
	}
	// unparseable strings are kept as-is for display
	return nil, s
}

// fromEpoch treats n as seconds unless it is too large to be a plausible
// second epoch, in which case it is scaled down as milliseconds (then
// microseconds). Non-positive values are unresolved.
func fromEpoch(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	for n > maxEpochSeconds {
		n /= 1000
	}
	return &n
}

func fromFloat(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 {
		return nil
	}
	return fromEpoch(int64(f))
}

// FormatTime renders a canonical timestamp for prompts. Unresolved
// timestamps show the raw value when there is one, else "Unknown time".
func FormatTime(ts *int64, raw string, loc *time.Location) string {
	if ts == nil {
		if raw != "" {
			return raw
		}
		return "Unknown time"
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(*ts, 0).In(loc).Format("2006-01-02 15:04:05")
}
