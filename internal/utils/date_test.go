package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		input       string
		want        time.Time
		errContains string
	}{
		{name: "relative 7d", input: "7d", want: now.AddDate(0, 0, -7)},
		{name: "relative 1d", input: "1d", want: now.AddDate(0, 0, -1)},
		{name: "relative 30d", input: "30d", want: now.AddDate(0, 0, -30)},
		{name: "relative hours", input: "12h", want: now.Add(-12 * time.Hour)},
		{name: "zero hours", input: "0h", want: now},
		{name: "absolute", input: "2025-12-15", want: time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC)},
		{name: "absolute earlier", input: "2024-01-01", want: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{name: "empty", input: "", errContains: "cannot be empty"},
		{name: "no number", input: "d", errContains: "invalid relative date format"},
		{name: "garbage number", input: "xh", errContains: "invalid relative date format"},
		{name: "wrong separator", input: "2025/12/15", errContains: "invalid date format"},
		{name: "incomplete date", input: "2025-12", errContains: "invalid date format"},
		{name: "not a date", input: "yesterday", errContains: "invalid date format"},
		{name: "negative days", input: "-7d", errContains: "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.input, now)
			if tt.errContains != "" {
				assert.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestParseSinceDateUsesNow(t *testing.T) {
	got, err := ParseSinceDate("1d")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -1), got, time.Second)
}

func TestDaysAgo(t *testing.T) {
	assert.True(t, DaysAgo(0).IsZero())
	assert.True(t, DaysAgo(-1).IsZero())
	assert.WithinDuration(t, time.Now().AddDate(0, 0, -2), DaysAgo(2), time.Second)
}
