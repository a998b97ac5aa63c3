// Package cache keeps raw gateway history on disk as daily JSON snapshots.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/solvaholic/wadigest/internal/normalize"
)

const dayLayout = "2006-01-02"

// DefaultDir returns the default cache directory
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".wadigest", "cache"), nil
}

// Store is a raw history cache rooted at a directory
type Store struct {
	dir string
	now func() time.Time
}

// New creates a Store. An empty dir uses DefaultDir.
func New(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the cache root
func (s *Store) Dir() string {
	return s.dir
}

// HistoryDir returns the directory holding the daily snapshots of a chat
func (s *Store) HistoryDir(chatID string) string {
	return filepath.Join(s.dir, "raw", "greenapi", "chats", safeName(chatID), "history")
}

// History is one daily snapshot
type History struct {
	ChatID    string                 `json:"chat_id"`
	Date      string                 `json:"date"`
	FetchedAt time.Time              `json:"fetched_at"`
	Messages  []normalize.RawMessage `json:"messages"`
}

// SaveHistory merges messages into today's snapshot for chatID. Records
// already in the snapshot are not duplicated.
func (s *Store) SaveHistory(chatID string, messages []normalize.RawMessage) error {
	if len(messages) == 0 {
		return nil
	}

	dir := s.HistoryDir(chatID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	now := s.now()
	date := now.Format(dayLayout)
	filePath := filepath.Join(dir, date+".json")

	existing, err := readHistory(filePath)
	if err != nil {
		return err
	}
	var kept []normalize.RawMessage
	if existing != nil {
		kept = existing.Messages
	}

	snapshot := History{
		ChatID:    chatID,
		Date:      date,
		FetchedAt: now,
		Messages:  normalize.Merge(kept, messages),
	}
	return writeJSON(filePath, snapshot)
}

// LoadHistory returns the cached records of every snapshot dated on or after
// since, oldest snapshot first, without duplicates. A zero since loads
// everything. A cache miss returns nil and no error.
func (s *Store) LoadHistory(chatID string, since time.Time) ([]normalize.RawMessage, error) {
	dir := s.HistoryDir(chatID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	cutoff := ""
	if !since.IsZero() {
		cutoff = since.Format(dayLayout)
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(dayLayout, date); err != nil {
			continue
		}
		if date >= cutoff {
			dates = append(dates, date)
		}
	}
	slices.Sort(dates)

	var out []normalize.RawMessage
	for _, date := range dates {
		h, err := readHistory(filepath.Join(dir, date+".json"))
		if err != nil {
			return nil, err
		}
		if h != nil {
			out = normalize.Merge(out, h.Messages)
		}
	}
	return out, nil
}

// SaveGroupIndex writes the list of known groups
func (s *Store) SaveGroupIndex(groups any) error {
	dir := filepath.Join(s.dir, "raw", "greenapi")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create groups directory: %w", err)
	}

	index := map[string]any{
		"fetched_at": s.now(),
		"groups":     groups,
	}
	return writeJSON(filepath.Join(dir, "_groups.json"), index)
}

func readHistory(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse cache file %s: %w", filepath.Base(path), err)
	}
	return &h, nil
}

// writeJSON writes to a temp file first, then renames it into place
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}

	return nil
}

// safeName keeps chat ids such as 120363@g.us usable as directory names
func safeName(chatID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, chatID)
}
