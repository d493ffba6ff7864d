package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// maxSaveAttempts bounds the read-modify-write retries on version conflicts.
const maxSaveAttempts = 3

// errUnchanged tells mutateGroup the mutation was a no-op and nothing
// needs saving.
var errUnchanged = errors.New("group unchanged")

// mutateGroup loads a group, applies fn and saves it with compare-and-swap.
// On a version conflict the whole cycle runs again on a fresh copy, so fn
// must derive its changes from the group it is given.
func mutateGroup(ctx context.Context, store storage.GroupStore, groupID string, fn func(g *models.Group) error) (*models.Group, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		group, err := store.GetGroup(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to get group: %w", err)
		}
		if group == nil {
			return nil, apperr.NotFound("group", groupID)
		}

		if err := fn(group); err != nil {
			if errors.Is(err, errUnchanged) {
				return group, nil
			}
			return nil, err
		}

		err = store.SaveGroup(ctx, group)
		if err == nil {
			return group, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to save group: %w", err)
		}
		slog.Debug("Group version conflict, retrying", "group_id", groupID, "attempt", attempt)
	}
	return nil, fmt.Errorf("failed to save group %s after %d attempts: %w", groupID, maxSaveAttempts, storage.ErrVersionConflict)
}

// loadGroup returns the group or a NotFound error.
func loadGroup(ctx context.Context, store storage.GroupStore, groupID string) (*models.Group, error) {
	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if group == nil {
		return nil, apperr.NotFound("group", groupID)
	}
	return group, nil
}

// loadUser returns the user or a NotFound error.
func loadUser(ctx context.Context, store storage.UserStore, userID string) (*models.User, error) {
	user, err := store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user", userID)
	}
	return user, nil
}

// resolver loads every user in ids and returns a RefResolver over them.
func resolver(ctx context.Context, store storage.UserStore, ids []string) (models.RefResolver, error) {
	users, err := store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	return models.NewRefResolver(users), nil
}

// groupView resolves the user references of one group.
func groupView(ctx context.Context, store storage.UserStore, group *models.Group) (*models.GroupView, error) {
	resolve, err := resolver(ctx, store, group.UserIDs())
	if err != nil {
		return nil, err
	}
	v := group.View(resolve)
	return &v, nil
}
