// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrVersionConflict is returned by SaveGroup when the stored group was
	// written by someone else since it was read.
	ErrVersionConflict = errors.New("group was modified concurrently")

	// ErrDuplicateEmail is returned when creating or updating a user would
	// reuse another account's email.
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store defines the interface for user and group document storage.
// This abstraction allows swapping storage backends (SQLite, MongoDB)
// without changing the service layer.
//
// Lookups of a single entity return (nil, nil) when it does not exist.
type Store interface {
	UserStore
	GroupStore

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// UserStore persists user accounts and their contact sets.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUsersByIDs returns a map of user ID to User.
	// Users that don't exist are omitted from the result.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	ListUsers(ctx context.Context) ([]*models.User, error)

	// UpdateUser overwrites name, email, password hash and push token.
	// Returns false if the user does not exist.
	UpdateUser(ctx context.Context, user *models.User) (bool, error)

	// DeleteUser removes the account. Returns false if it did not exist.
	DeleteUser(ctx context.Context, id string) (bool, error)

	// AddContact adds contactID to userID's contact set.
	// It reports whether the set changed; adding twice is a no-op.
	AddContact(ctx context.Context, userID, contactID string) (bool, error)

	// RemoveContact drops contactID from userID's contact set.
	// It reports whether the set changed.
	RemoveContact(ctx context.Context, userID, contactID string) (bool, error)

	ListContacts(ctx context.Context, userID string) ([]*models.User, error)
}

// GroupStore persists group documents with their embedded members and expenses.
type GroupStore interface {
	// CreateGroup inserts a new group document at version 1.
	CreateGroup(ctx context.Context, group *models.Group) error

	GetGroup(ctx context.Context, id string) (*models.Group, error)

	// ListGroupsForUser returns the groups whose member list contains userID,
	// regardless of the member's soft-delete state.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// SaveGroup writes the whole document if the stored version still equals
	// group.Version, then increments group.Version. It returns
	// ErrVersionConflict when the stored version moved on.
	SaveGroup(ctx context.Context, group *models.Group) error

	// DeleteGroup removes the document. Returns false if it did not exist.
	DeleteGroup(ctx context.Context, id string) (bool, error)

	// FindGroupByExpense returns the group embedding the expense, or nil.
	FindGroupByExpense(ctx context.Context, expenseID string) (*models.Group, error)
}
