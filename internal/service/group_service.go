package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// GroupService manages groups and their member lists.
type GroupService struct {
	store storage.Store
	media media.Store
}

// NewGroupService creates a new GroupService with the given storage backends.
func NewGroupService(store storage.Store, mediaStore media.Store) *GroupService {
	return &GroupService{store: store, media: mediaStore}
}

// GroupInput holds the fields of a new group.
type GroupInput struct {
	Name        string
	Type        models.GroupType
	Description string
	MemberIDs   []string
}

// GroupUpdate lists the fields to change. Nil fields are left alone.
type GroupUpdate struct {
	Name        *string
	Type        *models.GroupType
	Description *string
	Image       *media.File
}

func (u GroupUpdate) empty() bool {
	return u.Name == nil && u.Type == nil && u.Description == nil && u.Image == nil
}

// GroupBalances is the outstanding debt picture of a group.
type GroupBalances struct {
	Balances []calculator.MemberBalance `json:"balances"`
	Debts    []calculator.DebtEdge      `json:"debts"`
	Users    map[string]models.UserRef  `json:"users"`
}

// Create creates a new group with the creator as its first member.
func (s *GroupService) Create(ctx context.Context, creatorID string, in GroupInput, image *media.File) (*models.GroupView, error) {
	slog.Info("CreateGroup request received",
		"name", in.Name,
		"creator_id", creatorID,
		"members_count", len(in.MemberIDs),
	)

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Type == "" {
		return nil, apperr.Validation("name and type are required")
	}
	if !in.Type.Valid() {
		return nil, apperr.Validation("invalid group type %q", in.Type)
	}
	if _, err := loadUser(ctx, s.store, creatorID); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        in.Name,
		Type:        in.Type,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   creatorID,
		Members:     []models.Member{},
		Expenses:    []models.Expense{},
	}
	for _, id := range in.MemberIDs {
		if id = strings.TrimSpace(id); id != "" {
			group.EnsureMember(id)
		}
	}
	group.EnsureMember(creatorID)

	if image != nil {
		images, err := media.PutAll(ctx, s.media, media.FolderGroups, []media.File{*image}, media.MaxGroupImages)
		if err != nil {
			return nil, err
		}
		group.Image = &images[0]
	}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		if group.Image != nil {
			media.DeleteAll(ctx, s.media, []models.Image{*group.Image})
		}
		slog.Error("CreateGroup failed", "error", err)
		return nil, err
	}

	slog.Info("Group created", "group_id", group.ID)
	return groupView(ctx, s.store, group)
}

// Get returns a group with its user references resolved.
func (s *GroupService) Get(ctx context.Context, groupID string) (*models.GroupView, error) {
	group, err := loadGroup(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}
	return groupView(ctx, s.store, group)
}

// ListForUser returns every group whose member list names userID, including
// groups where the membership is soft-deleted.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]models.GroupView, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, g := range groups {
		ids = append(ids, g.UserIDs()...)
	}
	resolve, err := resolver(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.GroupView, len(groups))
	for i, g := range groups {
		views[i] = g.View(resolve)
	}
	slog.Info("ListGroups successful", "user_id", userID, "count", len(views))
	return views, nil
}

// ListMembers returns the group's member list with users resolved.
func (s *GroupService) ListMembers(ctx context.Context, groupID string) ([]models.MemberView, error) {
	view, err := s.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return view.Members, nil
}

// Edit updates the provided fields. It fails with NotFound when the group
// does not exist or when nothing actually changed.
func (s *GroupService) Edit(ctx context.Context, groupID string, update GroupUpdate) (*models.GroupView, error) {
	slog.Info("UpdateGroup request received", "group_id", groupID)

	if update.empty() {
		return nil, apperr.Validation("no fields to update")
	}
	if update.Type != nil && !update.Type.Valid() {
		return nil, apperr.Validation("invalid group type %q", *update.Type)
	}
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, apperr.Validation("name cannot be empty")
	}

	var newImage *models.Image
	if update.Image != nil {
		images, err := media.PutAll(ctx, s.media, media.FolderGroups, []media.File{*update.Image}, media.MaxGroupImages)
		if err != nil {
			return nil, err
		}
		newImage = &images[0]
	}

	var oldImage *models.Image
	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		oldImage = nil
		changed := false
		if update.Name != nil && strings.TrimSpace(*update.Name) != g.Name {
			g.Name = strings.TrimSpace(*update.Name)
			changed = true
		}
		if update.Type != nil && *update.Type != g.Type {
			g.Type = *update.Type
			changed = true
		}
		if update.Description != nil && *update.Description != g.Description {
			g.Description = *update.Description
			changed = true
		}
		if newImage != nil {
			oldImage = g.Image
			g.Image = newImage
			changed = true
		}
		if !changed {
			return fmt.Errorf("%w: group %s has no changes", apperr.ErrNotFound, groupID)
		}
		return nil
	})
	if err != nil {
		if newImage != nil {
			media.DeleteAll(ctx, s.media, []models.Image{*newImage})
		}
		return nil, err
	}

	if oldImage != nil {
		media.DeleteAll(ctx, s.media, []models.Image{*oldImage})
	}

	slog.Info("Group updated", "group_id", groupID)
	return groupView(ctx, s.store, group)
}

// Delete removes a group. Only its creator may delete it. Image blobs are
// removed on a best-effort basis afterwards.
func (s *GroupService) Delete(ctx context.Context, groupID, requesterID string) error {
	slog.Info("DeleteGroup request received", "group_id", groupID, "requester_id", requesterID)

	group, err := loadGroup(ctx, s.store, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != requesterID {
		return apperr.Forbidden("only the creator can delete group %s", groupID)
	}

	deleted, err := s.store.DeleteGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("group", groupID)
	}

	var images []models.Image
	if group.Image != nil {
		images = append(images, *group.Image)
	}
	for _, e := range group.Expenses {
		images = append(images, e.Images...)
	}
	media.DeleteAll(ctx, s.media, images)

	slog.Info("Group deleted", "group_id", groupID, "images", len(images))
	return nil
}

// AddMember adds userID as an active member, reactivating a soft-deleted entry.
func (s *GroupService) AddMember(ctx context.Context, groupID, userID string) (*models.GroupView, error) {
	slog.Info("AddMember request received", "group_id", groupID, "user_id", userID)

	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if _, err := loadUser(ctx, s.store, userID); err != nil {
		return nil, err
	}

	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		if g.IsActiveMember(userID) {
			return apperr.Conflict("user %s is already a member of group %s", userID, groupID)
		}
		g.EnsureMember(userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groupView(ctx, s.store, group)
}

// RemoveMember removes memberID from the group. A member still referenced
// by a live participant record is soft-deleted instead.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, memberID string) (*models.GroupView, error) {
	slog.Info("RemoveMember request received", "group_id", groupID, "member_id", memberID)

	if memberID == "" {
		return nil, apperr.Validation("memberId is required")
	}

	softDeleted := false
	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		m := g.FindMember(memberID)
		if m == nil {
			return apperr.NotFound("member", memberID)
		}
		softDeleted = !models.ShouldHardDelete(memberID, g.Expenses)
		if softDeleted {
			m.IsDeleted = true
		} else {
			g.RemoveMemberEntry(memberID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Member removed", "group_id", groupID, "member_id", memberID, "soft_deleted", softDeleted)
	return groupView(ctx, s.store, group)
}

// Balances computes outstanding balances and simplified debts for the group.
func (s *GroupService) Balances(ctx context.Context, groupID string) (*GroupBalances, error) {
	group, err := loadGroup(ctx, s.store, groupID)
	if err != nil {
		return nil, err
	}

	balances, debts := calculator.CalculateGroupBalances(group.Expenses)
	if balances == nil {
		balances = []calculator.MemberBalance{}
	}
	if debts == nil {
		debts = []calculator.DebtEdge{}
	}

	resolve, err := resolver(ctx, s.store, group.UserIDs())
	if err != nil {
		return nil, err
	}
	users := make(map[string]models.UserRef, len(balances))
	for _, b := range balances {
		users[b.UserID] = resolve(b.UserID)
	}

	return &GroupBalances{Balances: balances, Debts: debts, Users: users}, nil
}
