package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/solvaholic/wadigest/internal/normalize"
)

// StoreMessages upserts msgs under chatID in one transaction and returns the
// number of rows written. Storing the same batch twice is harmless.
func (db *DB) StoreMessages(chatID string, msgs []normalize.CanonicalMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO messages (
			chat_id, id, sender, sender_id, text, message_type, type_tag,
			timestamp, raw_time, quoted_text, outgoing, confidence,
			raw_json, schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, id) DO UPDATE SET
			sender = excluded.sender,
			sender_id = excluded.sender_id,
			text = excluded.text,
			message_type = excluded.message_type,
			type_tag = excluded.type_tag,
			timestamp = excluded.timestamp,
			raw_time = excluded.raw_time,
			quoted_text = excluded.quoted_text,
			outgoing = excluded.outgoing,
			confidence = excluded.confidence,
			raw_json = excluded.raw_json,
			stored_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, m := range msgs {
		var raw sql.NullString
		if m.Raw != nil {
			data, err := json.Marshal(m.Raw)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal raw message %s: %w", m.ID, err)
			}
			raw = sql.NullString{String: string(data), Valid: true}
		}

		_, err := stmt.Exec(chatID, m.ID, m.Sender, m.SenderID, m.Text,
			string(m.MessageType), m.TypeTag, nullInt64(m.Timestamp), m.RawTime,
			nullString(m.QuotedText), m.Outgoing, string(m.Confidence),
			raw, normalize.SchemaVersion)
		if err != nil {
			return 0, fmt.Errorf("failed to save message %s: %w", m.ID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit messages: %w", err)
	}
	return count, nil
}

// MessageQuery filters GetMessages. Start and End are unix seconds,
// inclusive. Limit keeps the most recent rows; 0 means no limit.
type MessageQuery struct {
	ChatID string
	Start  *int64
	End    *int64
	Limit  int
}

// GetMessages returns stored messages in chronological order, unresolved
// timestamps last
func (db *DB) GetMessages(q MessageQuery) ([]normalize.CanonicalMessage, error) {
	query := `
		SELECT id, chat_id, sender, sender_id, text, message_type, type_tag,
		       timestamp, raw_time, quoted_text, outgoing, confidence, raw_json, seq
		FROM (
			SELECT m.*, m.rowid AS seq FROM messages m WHERE m.chat_id = ?`
	args := []any{q.ChatID}

	if q.Start != nil {
		query += " AND m.timestamp >= ?"
		args = append(args, *q.Start)
	}
	if q.End != nil {
		query += " AND m.timestamp <= ?"
		args = append(args, *q.End)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	query += ` ORDER BY m.timestamp IS NULL, m.timestamp DESC, m.rowid DESC LIMIT ?
		)
		ORDER BY timestamp IS NULL, timestamp, seq`
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	messages := []normalize.CanonicalMessage{}
	for rows.Next() {
		var (
			m        normalize.CanonicalMessage
			senderID sql.NullString
			typeTag  sql.NullString
			ts       sql.NullInt64
			rawTime  sql.NullString
			quoted   sql.NullString
			kind     string
			conf     string
			raw      sql.NullString
			seq      int64
		)
		err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &senderID, &m.Text, &kind, &typeTag,
			&ts, &rawTime, &quoted, &m.Outgoing, &conf, &raw, &seq)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		m.SenderID = senderID.String
		m.TypeTag = typeTag.String
		m.MessageType = normalize.Kind(kind)
		m.Confidence = normalize.Confidence(conf)
		m.Timestamp = int64Ptr(ts)
		m.RawTime = rawTime.String
		if quoted.Valid {
			s := quoted.String
			m.QuotedText = &s
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &m.Raw); err != nil {
				return nil, fmt.Errorf("failed to unmarshal raw message %s: %w", m.ID, err)
			}
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// LatestTimestamp returns the newest resolved timestamp stored for chatID,
// or nil when there is none
func (db *DB) LatestTimestamp(chatID string) (*int64, error) {
	var ts sql.NullInt64
	err := db.QueryRow("SELECT MAX(timestamp) FROM messages WHERE chat_id = ?", chatID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest timestamp: %w", err)
	}
	return int64Ptr(ts), nil
}
