package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Summary is a stored digest
type Summary struct {
	ID           int64     `json:"id"`
	ChatID       string    `json:"chat_id"`
	Text         string    `json:"text"`
	StartTime    *int64    `json:"start_time,omitempty"`
	EndTime      *int64    `json:"end_time,omitempty"`
	MessageCount int       `json:"message_count"`
	Model        string    `json:"model,omitempty"`
	Fallback     bool      `json:"fallback"`
	FailureKind  string    `json:"failure_kind,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// StoreSummary inserts s and fills in its ID and CreatedAt
func (db *DB) StoreSummary(s *Summary) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	res, err := db.Exec(`
		INSERT INTO summaries (
			chat_id, text, start_time, end_time, message_count, model,
			fallback, failure_kind, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ChatID, s.Text, nullInt64(s.StartTime), nullInt64(s.EndTime),
		s.MessageCount, s.Model, s.Fallback, s.FailureKind, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get summary id: %w", err)
	}
	s.ID = id
	return nil
}

// RecentSummaries returns up to limit summaries, newest first. An empty
// chatID lists all chats.
func (db *DB) RecentSummaries(chatID string, limit int) ([]Summary, error) {
	query := `
		SELECT id, chat_id, text, start_time, end_time, message_count, model,
		       fallback, failure_kind, created_at
		FROM summaries`
	args := []any{}
	if chatID != "" {
		query += " WHERE chat_id = ?"
		args = append(args, chatID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select summaries: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			s           Summary
			start, end  sql.NullInt64
			model, kind sql.NullString
		)
		err := rows.Scan(&s.ID, &s.ChatID, &s.Text, &start, &end, &s.MessageCount,
			&model, &s.Fallback, &kind, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		s.StartTime = int64Ptr(start)
		s.EndTime = int64Ptr(end)
		s.Model = model.String
		s.FailureKind = kind.String
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}

	return summaries, nil
}
