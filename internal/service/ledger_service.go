package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/media"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Notifier is the notification side of the ledger. *notify.Dispatcher implements it.
type Notifier interface {
	// NotifyNewExpense dispatches in the background and returns immediately.
	NotifyNewExpense(groupID string, expense models.Expense)
	// NotifyReminder returns the eligible recipient count; delivery is background.
	NotifyReminder(ctx context.Context, groupID string, expense models.Expense) (int, error)
}

// LedgerService manages expenses embedded in groups.
type LedgerService struct {
	store    storage.Store
	media    media.Store
	notifier Notifier
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(store storage.Store, mediaStore media.Store, notifier Notifier) *LedgerService {
	return &LedgerService{store: store, media: mediaStore, notifier: notifier}
}

// ParticipantInput is a participant as supplied by a client.
type ParticipantInput struct {
	UserID     string  `json:"user"`
	AmountOwed float64 `json:"amountOwed"`
	Percentage float64 `json:"percentage"`
	Paid       bool    `json:"paid"`
}

// ExpenseInput holds the fields of a new expense.
type ExpenseInput struct {
	Description  string
	Type         models.ExpenseType
	TotalAmount  float64
	PaidBy       string
	SplitType    models.SplitType
	Participants []ParticipantInput
	// Date is a Unix timestamp; zero means now.
	Date int64
}

// ExpenseUpdate lists the fields to change. Nil fields are left alone and a
// nil Participants keeps the current participant list.
type ExpenseUpdate struct {
	Description    *string
	Type           *models.ExpenseType
	TotalAmount    *float64
	PaidBy         *string
	SplitType      *models.SplitType
	Date           *int64
	Participants   []ParticipantInput
	ImagesToRemove []string
}

// ExpenseResult is a changed expense together with its group.
type ExpenseResult struct {
	Group   models.GroupView   `json:"group"`
	Expense models.ExpenseView `json:"expense"`
}

// AddExpense records a new expense in a group.
//
// Participants who are not yet contacts of the payer become contacts, and
// participants who are not active members become members. Amounts are
// recomputed from the split type. New-expense notifications are sent in
// the background.
func (s *LedgerService) AddExpense(ctx context.Context, groupID string, in ExpenseInput, images []media.File) (*ExpenseResult, error) {
	slog.Info("AddExpense request received",
		"group_id", groupID,
		"paid_by", in.PaidBy,
		"total", in.TotalAmount,
		"participants_count", len(in.Participants),
	)

	if err := validateExpenseInput(&in); err != nil {
		return nil, err
	}
	if _, err := loadGroup(ctx, s.store, groupID); err != nil {
		return nil, err
	}
	payer, err := loadUser(ctx, s.store, in.PaidBy)
	if err != nil {
		return nil, err
	}
	if err := s.requireUsers(ctx, participantUserIDs(in.Participants)); err != nil {
		return nil, err
	}

	expense := models.Expense{
		ID:          uuid.New().String(),
		Description: in.Description,
		Type:        in.Type,
		TotalAmount: in.TotalAmount,
		PaidBy:      in.PaidBy,
		SplitType:   in.SplitType,
		Images:      []models.Image{},
		Date:        in.Date,
	}
	if expense.Date == 0 {
		expense.Date = time.Now().Unix()
	}
	if expense.Participants, err = buildParticipants(in.TotalAmount, in.SplitType, in.Participants); err != nil {
		return nil, err
	}

	if len(images) > 0 {
		if expense.Images, err = media.PutAll(ctx, s.media, media.FolderExpenses, images, media.MaxExpenseImages); err != nil {
			return nil, err
		}
	}

	var group *models.Group
	err = runSaga(ctx, "add-expense",
		sagaStep{name: "link-contacts", run: func(ctx context.Context) error {
			for _, p := range expense.Participants {
				if p.UserID == payer.ID || payer.HasContact(p.UserID) {
					continue
				}
				if _, err := s.store.AddContact(ctx, payer.ID, p.UserID); err != nil {
					return fmt.Errorf("failed to link contact %s: %w", p.UserID, err)
				}
				slog.Info("Contact linked", "user_id", payer.ID, "contact_id", p.UserID)
			}
			return nil
		}},
		sagaStep{name: "record-expense", run: func(ctx context.Context) error {
			group, err = mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
				for _, p := range expense.Participants {
					g.EnsureMember(p.UserID)
				}
				g.Expenses = append(g.Expenses, expense)
				return nil
			})
			return err
		}},
	)
	if err != nil {
		media.DeleteAll(ctx, s.media, expense.Images)
		return nil, err
	}

	slog.Info("Expense added", "group_id", groupID, "expense_id", expense.ID)
	s.notifier.NotifyNewExpense(groupID, expense)

	return s.result(ctx, group, expense.ID)
}

// UpdateExpense merges the provided fields into an expense, appends
// newImages and removes the images listed in ImagesToRemove. Removed
// blobs are deleted on a best-effort basis.
func (s *LedgerService) UpdateExpense(ctx context.Context, groupID, expenseID string, update ExpenseUpdate, newImages []media.File, actorID string) (*ExpenseResult, error) {
	slog.Info("UpdateExpense request received",
		"group_id", groupID,
		"expense_id", expenseID,
		"actor_id", actorID,
		"new_images", len(newImages),
		"images_to_remove", len(update.ImagesToRemove),
	)

	if err := validateExpenseUpdate(update); err != nil {
		return nil, err
	}
	if update.PaidBy != nil {
		if _, err := loadUser(ctx, s.store, *update.PaidBy); err != nil {
			return nil, err
		}
	}
	if update.Participants != nil {
		if err := s.requireUsers(ctx, participantUserIDs(update.Participants)); err != nil {
			return nil, err
		}
	}

	var uploaded []models.Image
	if len(newImages) > 0 {
		var err error
		if uploaded, err = media.PutAll(ctx, s.media, media.FolderExpenses, newImages, media.MaxExpenseImages); err != nil {
			return nil, err
		}
	}

	var removed []models.Image
	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		removed = nil
		e := g.FindExpense(expenseID)
		if e == nil {
			return apperr.NotFound("expense", expenseID)
		}
		var err error
		if removed, err = applyExpenseUpdate(e, update, uploaded); err != nil {
			return err
		}
		for _, p := range e.Participants {
			if !p.IsDeleted {
				g.EnsureMember(p.UserID)
			}
		}
		return nil
	})
	if err != nil {
		media.DeleteAll(ctx, s.media, uploaded)
		return nil, err
	}

	media.DeleteAll(ctx, s.media, removed)

	slog.Info("Expense updated", "group_id", groupID, "expense_id", expenseID)
	return s.result(ctx, group, expenseID)
}

// DeleteExpense removes an expense and, best-effort, its image blobs.
func (s *LedgerService) DeleteExpense(ctx context.Context, groupID, expenseID string) (*models.GroupView, error) {
	slog.Info("DeleteExpense request received", "group_id", groupID, "expense_id", expenseID)

	var removed models.Expense
	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		var ok bool
		if removed, ok = g.RemoveExpense(expenseID); !ok {
			return apperr.NotFound("expense", expenseID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	media.DeleteAll(ctx, s.media, removed.Images)

	slog.Info("Expense deleted", "group_id", groupID, "expense_id", expenseID)
	return groupView(ctx, s.store, group)
}

// AddParticipant adds one participant to an existing expense. A soft-deleted
// record for the same user is reactivated. Equal splits are recomputed; on
// unequal and percentage splits the newcomer's share is taken as given and
// the existing shares are kept.
func (s *LedgerService) AddParticipant(ctx context.Context, groupID, expenseID string, in ParticipantInput) (*ExpenseResult, error) {
	slog.Info("AddParticipant request received", "group_id", groupID, "expense_id", expenseID, "user_id", in.UserID)

	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return nil, apperr.Validation("participant user is required")
	}
	if _, err := loadUser(ctx, s.store, in.UserID); err != nil {
		return nil, err
	}

	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		e := g.FindExpense(expenseID)
		if e == nil {
			return apperr.NotFound("expense", expenseID)
		}

		inputs := activeInputs(e.Participants)
		for _, p := range inputs {
			if p.UserID == in.UserID {
				return apperr.Conflict("user %s already participates in expense %s", in.UserID, expenseID)
			}
		}

		var (
			amounts []float64
			owed    float64
			err     error
		)
		if e.SplitType == models.SplitEqual || e.SplitType == "" {
			if amounts, err = shareAmounts(e.TotalAmount, e.SplitType, append(inputs, in)); err != nil {
				return err
			}
		} else {
			share := calculator.Share{Amount: in.AmountOwed, Percentage: in.Percentage}
			if owed, err = calculator.AddedShare(e.TotalAmount, e.SplitType, share); err != nil {
				return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
			}
		}

		p := findUserParticipant(e, in.UserID)
		if p != nil {
			p.IsDeleted = false
		} else {
			e.Participants = append(e.Participants, models.Participant{
				ID:     uuid.New().String(),
				UserID: in.UserID,
			})
			p = &e.Participants[len(e.Participants)-1]
		}
		p.Paid = in.Paid
		p.Percentage = in.Percentage
		p.AmountOwed = owed
		if amounts != nil {
			assignAmounts(e, amounts)
		}
		g.EnsureMember(in.UserID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, group, expenseID)
}

// UpdateParticipantPaid sets the paid flag of one participant.
// participantID matches either the participant record ID or its user ID.
func (s *LedgerService) UpdateParticipantPaid(ctx context.Context, groupID, expenseID, participantID string, paid bool) (*ExpenseResult, error) {
	slog.Info("UpdateParticipantPaid request received",
		"group_id", groupID,
		"expense_id", expenseID,
		"participant_id", participantID,
		"paid", paid,
	)

	return s.updateParticipant(ctx, groupID, expenseID, participantID, func(p *models.Participant) bool {
		if p.Paid == paid {
			return false
		}
		p.Paid = paid
		return true
	})
}

// SoftDeleteParticipant sets or clears the deleted flag of one participant.
// The record stays in the expense.
func (s *LedgerService) SoftDeleteParticipant(ctx context.Context, groupID, expenseID, participantID string, isDeleted bool) (*ExpenseResult, error) {
	slog.Info("SoftDeleteParticipant request received",
		"group_id", groupID,
		"expense_id", expenseID,
		"participant_id", participantID,
		"is_deleted", isDeleted,
	)

	return s.updateParticipant(ctx, groupID, expenseID, participantID, func(p *models.Participant) bool {
		if p.IsDeleted == isDeleted {
			return false
		}
		p.IsDeleted = isDeleted
		return true
	})
}

func (s *LedgerService) updateParticipant(ctx context.Context, groupID, expenseID, participantID string, apply func(p *models.Participant) bool) (*ExpenseResult, error) {
	if participantID == "" {
		return nil, apperr.Validation("participantId is required")
	}

	group, err := mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
		e := g.FindExpense(expenseID)
		if e == nil {
			return apperr.NotFound("expense", expenseID)
		}
		p := e.FindParticipant(participantID)
		if p == nil {
			return apperr.NotFound("participant", participantID)
		}
		if !apply(p) {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.result(ctx, group, expenseID)
}

// FindByID locates an expense across all groups.
func (s *LedgerService) FindByID(ctx context.Context, expenseID string) (*models.ExpenseView, error) {
	group, err := s.store.FindGroupByExpense(ctx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find expense: %w", err)
	}
	if group == nil {
		return nil, apperr.NotFound("expense", expenseID)
	}
	res, err := s.result(ctx, group, expenseID)
	if err != nil {
		return nil, err
	}
	return &res.Expense, nil
}

// SendReminder sends payment reminders to the expense's eligible
// participants and returns how many there are. Zero is not an error.
func (s *LedgerService) SendReminder(ctx context.Context, groupID, expenseID string) (int, error) {
	slog.Info("SendReminder request received", "group_id", groupID, "expense_id", expenseID)

	group, err := loadGroup(ctx, s.store, groupID)
	if err != nil {
		return 0, err
	}
	e := group.FindExpense(expenseID)
	if e == nil {
		return 0, apperr.NotFound("expense", expenseID)
	}

	count, err := s.notifier.NotifyReminder(ctx, groupID, *e)
	if err != nil {
		return 0, err
	}
	slog.Info("Reminder dispatched", "group_id", groupID, "expense_id", expenseID, "recipients", count)
	return count, nil
}

// result resolves the group and one of its expenses for the response.
func (s *LedgerService) result(ctx context.Context, group *models.Group, expenseID string) (*ExpenseResult, error) {
	e := group.FindExpense(expenseID)
	if e == nil {
		return nil, apperr.NotFound("expense", expenseID)
	}
	resolve, err := resolver(ctx, s.store, group.UserIDs())
	if err != nil {
		return nil, err
	}
	ev := e.View(resolve)
	ev.GroupID = group.ID
	return &ExpenseResult{Group: group.View(resolve), Expense: ev}, nil
}

// requireUsers fails with NotFound naming the first unknown user.
func (s *LedgerService) requireUsers(ctx context.Context, ids []string) error {
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return apperr.NotFound("user", id)
		}
	}
	return nil
}

func validateExpenseInput(in *ExpenseInput) error {
	in.Description = strings.TrimSpace(in.Description)
	in.PaidBy = strings.TrimSpace(in.PaidBy)
	if in.Description == "" || in.Type == "" || in.TotalAmount == 0 || in.PaidBy == "" {
		return apperr.Validation("description, type, totalAmount and paidBy are required")
	}
	if !in.Type.Valid() {
		return apperr.Validation("invalid expense type %q", in.Type)
	}
	if in.TotalAmount < 0 {
		return apperr.Validation("totalAmount must be positive")
	}
	if in.SplitType == "" {
		in.SplitType = models.SplitEqual
	}
	if !in.SplitType.Valid() {
		return apperr.Validation("invalid split type %q", in.SplitType)
	}
	return validateParticipants(in.Participants)
}

func validateExpenseUpdate(u ExpenseUpdate) error {
	if u.Description != nil && strings.TrimSpace(*u.Description) == "" {
		return apperr.Validation("description cannot be empty")
	}
	if u.Type != nil && !u.Type.Valid() {
		return apperr.Validation("invalid expense type %q", *u.Type)
	}
	if u.TotalAmount != nil && *u.TotalAmount <= 0 {
		return apperr.Validation("totalAmount must be positive")
	}
	if u.SplitType != nil && !u.SplitType.Valid() {
		return apperr.Validation("invalid split type %q", *u.SplitType)
	}
	if u.PaidBy != nil && strings.TrimSpace(*u.PaidBy) == "" {
		return apperr.Validation("paidBy cannot be empty")
	}
	if u.Participants != nil {
		return validateParticipants(u.Participants)
	}
	return nil
}

func validateParticipants(in []ParticipantInput) error {
	if len(in) == 0 {
		return apperr.Validation("at least one participant is required")
	}
	seen := make(map[string]bool, len(in))
	for i := range in {
		in[i].UserID = strings.TrimSpace(in[i].UserID)
		if in[i].UserID == "" {
			return apperr.Validation("participant %d: user is required", i+1)
		}
		if seen[in[i].UserID] {
			return apperr.Validation("participant %s listed twice", in[i].UserID)
		}
		seen[in[i].UserID] = true
	}
	return nil
}

func participantUserIDs(in []ParticipantInput) []string {
	ids := make([]string, len(in))
	for i, p := range in {
		ids[i] = p.UserID
	}
	return ids
}

// shareAmounts runs the split calculator and maps its errors to validation errors.
func shareAmounts(total float64, splitType models.SplitType, in []ParticipantInput) ([]float64, error) {
	shares := make([]calculator.Share, len(in))
	for i, p := range in {
		shares[i] = calculator.Share{Amount: p.AmountOwed, Percentage: p.Percentage}
	}
	amounts, err := calculator.ComputeShares(total, splitType, shares)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return amounts, nil
}

func buildParticipants(total float64, splitType models.SplitType, in []ParticipantInput) ([]models.Participant, error) {
	amounts, err := shareAmounts(total, splitType, in)
	if err != nil {
		return nil, err
	}
	participants := make([]models.Participant, len(in))
	for i, p := range in {
		participants[i] = models.Participant{
			ID:         uuid.New().String(),
			UserID:     p.UserID,
			AmountOwed: amounts[i],
			Paid:       p.Paid,
		}
		if splitType == models.SplitPercentage {
			participants[i].Percentage = p.Percentage
		}
	}
	return participants, nil
}

// activeInputs turns the live participants back into calculator input.
func activeInputs(participants []models.Participant) []ParticipantInput {
	var in []ParticipantInput
	for _, p := range participants {
		if p.IsDeleted {
			continue
		}
		in = append(in, ParticipantInput{
			UserID:     p.UserID,
			AmountOwed: p.AmountOwed,
			Percentage: p.Percentage,
			Paid:       p.Paid,
		})
	}
	return in
}

// assignAmounts writes amounts to the live participants in order.
func assignAmounts(e *models.Expense, amounts []float64) {
	i := 0
	for j := range e.Participants {
		if e.Participants[j].IsDeleted {
			continue
		}
		e.Participants[j].AmountOwed = amounts[i]
		i++
	}
}

func findUserParticipant(e *models.Expense, userID string) *models.Participant {
	for i := range e.Participants {
		if e.Participants[i].UserID == userID {
			return &e.Participants[i]
		}
	}
	return nil
}

// applyExpenseUpdate merges update into e and returns the removed images.
func applyExpenseUpdate(e *models.Expense, update ExpenseUpdate, uploaded []models.Image) ([]models.Image, error) {
	recompute := false
	if update.Description != nil {
		e.Description = strings.TrimSpace(*update.Description)
	}
	if update.Type != nil {
		e.Type = *update.Type
	}
	if update.TotalAmount != nil && *update.TotalAmount != e.TotalAmount {
		e.TotalAmount = *update.TotalAmount
		recompute = true
	}
	if update.PaidBy != nil {
		e.PaidBy = strings.TrimSpace(*update.PaidBy)
	}
	if update.SplitType != nil && *update.SplitType != e.SplitType {
		e.SplitType = *update.SplitType
		recompute = true
	}
	if update.Date != nil {
		e.Date = *update.Date
	}

	if update.Participants != nil {
		participants, err := buildParticipants(e.TotalAmount, e.SplitType, update.Participants)
		if err != nil {
			return nil, err
		}
		// Keep record IDs stable for users who stay on the expense.
		for i := range participants {
			if old := findUserParticipant(e, participants[i].UserID); old != nil {
				participants[i].ID = old.ID
			}
		}
		e.Participants = participants
	} else if recompute {
		amounts, err := shareAmounts(e.TotalAmount, e.SplitType, activeInputs(e.Participants))
		if err != nil {
			return nil, err
		}
		assignAmounts(e, amounts)
	}

	if len(e.Images)-countMatching(e.Images, update.ImagesToRemove)+len(uploaded) > media.MaxExpenseImages {
		return nil, apperr.Validation("at most %d images allowed", media.MaxExpenseImages)
	}
	removed := e.RemoveImages(update.ImagesToRemove)
	e.Images = append(e.Images, uploaded...)
	return removed, nil
}

func countMatching(images []models.Image, publicIDs []string) int {
	n := 0
	for _, img := range images {
		for _, id := range publicIDs {
			if img.PublicID == id {
				n++
				break
			}
		}
	}
	return n
}
