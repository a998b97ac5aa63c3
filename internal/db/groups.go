package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Group is a WhatsApp group the bot has seen
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Owner        *string   `json:"owner,omitempty"`
	Participants int       `json:"participants"`
	FetchedAt    time.Time `json:"fetched_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SaveGroup saves or updates a group
func (db *DB) SaveGroup(g *Group) error {
	_, err := db.Exec(`
		INSERT INTO groups (id, name, owner, participants)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner = COALESCE(excluded.owner, groups.owner),
			participants = CASE WHEN excluded.participants > 0
				THEN excluded.participants ELSE groups.participants END,
			updated_at = CURRENT_TIMESTAMP
	`, g.ID, g.Name, nullString(g.Owner), g.Participants)

	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}

	return nil
}

// GetGroup retrieves a group by ID
func (db *DB) GetGroup(id string) (*Group, error) {
	g := &Group{}

	err := db.QueryRow(`
		SELECT id, name, owner, participants, fetched_at, updated_at
		FROM groups
		WHERE id = ?
	`, id).Scan(&g.ID, &g.Name, &g.Owner, &g.Participants, &g.FetchedAt, &g.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	return g, nil
}

// ListGroups returns all known groups ordered by name
func (db *DB) ListGroups() ([]*Group, error) {
	rows, err := db.Query(`
		SELECT id, name, owner, participants, fetched_at, updated_at
		FROM groups
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	groups := []*Group{}
	for rows.Next() {
		g := &Group{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Owner, &g.Participants, &g.FetchedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	return groups, nil
}
