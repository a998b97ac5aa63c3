package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RateLimitPolicy is applied to endpoints seen for the first time
type RateLimitPolicy struct {
	Window      time.Duration
	MaxRequests int
	// SafetyLimit is where CheckRateLimit starts refusing, below the
	// provider's hard MaxRequests
	SafetyLimit int
}

// DefaultRateLimitPolicy allows 50 calls a minute per endpoint
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{Window: time.Minute, MaxRequests: 60, SafetyLimit: 50}
}

// SetRateLimitPolicy changes the policy for endpoints not yet tracked
func (db *DB) SetRateLimitPolicy(p RateLimitPolicy) {
	db.limits = p
}

// RateLimit is the accounting row for one endpoint
type RateLimit struct {
	SourceType            string    `json:"source_type"`
	WorkspaceID           *string   `json:"workspace_id,omitempty"`
	Endpoint              string    `json:"endpoint"`
	RequestsMade          int       `json:"requests_made"`
	WindowStart           time.Time `json:"window_start"`
	WindowDurationSeconds int       `json:"window_duration_seconds"`
	MaxRequests           int       `json:"max_requests"`
	SafetyLimit           int       `json:"safety_limit"`
}

// CheckRateLimit reports whether a request may be made now. An expired
// window is reset; an unknown endpoint starts tracking with the current
// policy.
func (db *DB) CheckRateLimit(sourceType string, workspaceID *string, endpoint string) (bool, error) {
	rl, err := db.GetRateLimitStatus(sourceType, workspaceID, endpoint)
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %w", err)
	}
	if rl == nil {
		p := db.limits
		return true, db.InitRateLimit(sourceType, workspaceID, endpoint, int(p.Window/time.Second), p.MaxRequests, p.SafetyLimit)
	}

	windowEnd := rl.WindowStart.Add(time.Duration(rl.WindowDurationSeconds) * time.Second)
	if time.Now().After(windowEnd) {
		return true, db.ResetRateLimitWindow(sourceType, workspaceID, endpoint)
	}

	return rl.RequestsMade < rl.SafetyLimit, nil
}

// RecordRequest counts a completed request
func (db *DB) RecordRequest(sourceType string, workspaceID *string, endpoint string) error {
	_, err := db.Exec(`
		UPDATE rate_limits
		SET requests_made = requests_made + 1
		WHERE source_type = ? AND workspace_id IS ? AND endpoint = ?
	`, sourceType, nullString(workspaceID), endpoint)

	if err != nil {
		return fmt.Errorf("failed to record request: %w", err)
	}

	return nil
}

// InitRateLimit starts tracking an endpoint
func (db *DB) InitRateLimit(sourceType string, workspaceID *string, endpoint string, windowSeconds, maxRequests, safetyLimit int) error {
	_, err := db.Exec(`
		INSERT INTO rate_limits (
			source_type, workspace_id, endpoint, requests_made, window_start,
			window_duration_seconds, max_requests, safety_limit
		) VALUES (?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(source_type, workspace_id, endpoint) DO NOTHING
	`, sourceType, nullString(workspaceID), endpoint, time.Now().UTC(), windowSeconds, maxRequests, safetyLimit)

	if err != nil {
		return fmt.Errorf("failed to init rate limit: %w", err)
	}

	return nil
}

// ResetRateLimitWindow starts a new window with no requests
func (db *DB) ResetRateLimitWindow(sourceType string, workspaceID *string, endpoint string) error {
	_, err := db.Exec(`
		UPDATE rate_limits
		SET requests_made = 0, window_start = ?
		WHERE source_type = ? AND workspace_id IS ? AND endpoint = ?
	`, time.Now().UTC(), sourceType, nullString(workspaceID), endpoint)

	if err != nil {
		return fmt.Errorf("failed to reset rate limit window: %w", err)
	}

	return nil
}

// GetRateLimitStatus returns the accounting row, or nil if the endpoint is
// not tracked
func (db *DB) GetRateLimitStatus(sourceType string, workspaceID *string, endpoint string) (*RateLimit, error) {
	rl := &RateLimit{}

	err := db.QueryRow(`
		SELECT source_type, workspace_id, endpoint, requests_made, window_start,
		       window_duration_seconds, max_requests, safety_limit
		FROM rate_limits
		WHERE source_type = ? AND workspace_id IS ? AND endpoint = ?
	`, sourceType, nullString(workspaceID), endpoint).Scan(
		&rl.SourceType, &rl.WorkspaceID, &rl.Endpoint, &rl.RequestsMade,
		&rl.WindowStart, &rl.WindowDurationSeconds, &rl.MaxRequests, &rl.SafetyLimit,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rate limit status: %w", err)
	}

	return rl, nil
}

// RateLimits lists every tracked endpoint
func (db *DB) RateLimits() ([]RateLimit, error) {
	rows, err := db.Query(`
		SELECT source_type, workspace_id, endpoint, requests_made, window_start,
		       window_duration_seconds, max_requests, safety_limit
		FROM rate_limits
		ORDER BY source_type, endpoint
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rate limits: %w", err)
	}
	defer rows.Close()

	var out []RateLimit
	for rows.Next() {
		var rl RateLimit
		if err := rows.Scan(&rl.SourceType, &rl.WorkspaceID, &rl.Endpoint, &rl.RequestsMade,
			&rl.WindowStart, &rl.WindowDurationSeconds, &rl.MaxRequests, &rl.SafetyLimit); err != nil {
			return nil, fmt.Errorf("failed to scan rate limit: %w", err)
		}
		out = append(out, rl)
	}
	return out, rows.Err()
}
