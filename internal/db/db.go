// Package db is the SQLite repository for messages, summaries, groups and
// gateway rate limits.
package db

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const SchemaVersion = 1

// DB wraps the SQLite database connection
type DB struct {
	conn   *sql.DB
	path   string
	limits RateLimitPolicy
}

// Open opens or creates the wadigest database at the given path
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{
		conn:   conn,
		path:   dbPath,
		limits: DefaultRateLimitPolicy(),
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// initSchema creates the schema on a fresh database and refuses databases
// written by a newer version
func (db *DB) initSchema() error {
	var currentVersion int
	err := db.conn.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&currentVersion)

	if errors.Is(err, sql.ErrNoRows) || (err != nil && strings.Contains(err.Error(), "no such table")) {
		if _, err := db.conn.Exec(schemaSQL); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}
	if currentVersion < SchemaVersion {
		return fmt.Errorf("schema migration needed from version %d to %d (not implemented)", currentVersion, SchemaVersion)
	}

	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

// Stats returns database statistics
func (db *DB) Stats() (*Stats, error) {
	stats := &Stats{}

	err := db.QueryRow("SELECT COUNT(*), COUNT(DISTINCT chat_id) FROM messages").Scan(&stats.MessageCount, &stats.ChatCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM summaries").Scan(&stats.SummaryCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count summaries: %w", err)
	}

	err = db.QueryRow("SELECT COUNT(*) FROM groups").Scan(&stats.GroupCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count groups: %w", err)
	}

	var earliest, latest sql.NullInt64
	err = db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM messages").Scan(&earliest, &latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get date range: %w", err)
	}
	stats.EarliestMessage = unixTime(earliest)
	stats.LatestMessage = unixTime(latest)

	if info, err := os.Stat(db.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}

// Stats represents database statistics
type Stats struct {
	MessageCount    int64      `json:"message_count"`
	ChatCount       int64      `json:"chat_count"`
	SummaryCount    int64      `json:"summary_count"`
	GroupCount      int64      `json:"group_count"`
	EarliestMessage *time.Time `json:"earliest_message,omitempty"`
	LatestMessage   *time.Time `json:"latest_message,omitempty"`
	DatabaseSize    int64      `json:"database_size"`
}

func unixTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
