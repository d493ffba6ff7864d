package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// CreateGroup persists a new group document.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if group.CreatedAt == 0 {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	group.Version = 1

	doc, err := json.Marshal(group)
	if err != nil {
		return fmt.Errorf("failed to encode group: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO groups (id, created_by, version, doc, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		group.ID, group.CreatedBy, group.Version, string(doc), group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// GetGroup retrieves a group document by ID.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	row := s.db.QueryRowContext(ctx, "SELECT version, doc FROM groups WHERE id = ?", id)
	group, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

// ListGroupsForUser returns all groups whose member list names the user,
// including soft-deleted memberships, most recently created first.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	return s.queryGroups(ctx, `
		SELECT g.version, g.doc
		FROM groups g
		WHERE EXISTS (
			SELECT 1 FROM json_each(g.doc, '$.members') m
			WHERE json_extract(m.value, '$.userId') = ?
		)
		ORDER BY g.created_at DESC, g.id`, userID)
}

// SaveGroup overwrites a group document if nobody saved it since it was read.
func (s *SQLiteStore) SaveGroup(ctx context.Context, group *models.Group) error {
	expected := group.Version
	group.Version = expected + 1
	group.UpdatedAt = time.Now().Unix()

	doc, err := json.Marshal(group)
	if err != nil {
		group.Version = expected
		return fmt.Errorf("failed to encode group: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE groups SET version = ?, doc = ?, updated_at = ? WHERE id = ? AND version = ?",
		group.Version, string(doc), group.UpdatedAt, group.ID, expected,
	)
	if err != nil {
		group.Version = expected
		return fmt.Errorf("failed to update group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		group.Version = expected
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		group.Version = expected
		return storage.ErrVersionConflict
	}
	return nil
}

// DeleteGroup removes a group document and everything embedded in it.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// FindGroupByExpense returns the group embedding the given expense.
func (s *SQLiteStore) FindGroupByExpense(ctx context.Context, expenseID string) (*models.Group, error) {
	groups, err := s.queryGroups(ctx, `
		SELECT g.version, g.doc
		FROM groups g
		WHERE EXISTS (
			SELECT 1 FROM json_each(g.doc, '$.expenses') e
			WHERE json_extract(e.value, '$.id') = ?
		)
		LIMIT 1`, expenseID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, nil
	}
	return groups[0], nil
}

func (s *SQLiteStore) queryGroups(ctx context.Context, query string, args ...any) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	groups := []*models.Group{}
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	return groups, nil
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var (
		version int64
		doc     string
	)
	if err := row.Scan(&version, &doc); err != nil {
		return nil, err
	}
	group := &models.Group{}
	if err := json.Unmarshal([]byte(doc), group); err != nil {
		return nil, fmt.Errorf("failed to decode group document: %w", err)
	}
	// The column is authoritative for compare-and-swap.
	group.Version = version
	return group, nil
}
