package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/splitledger/internal/models"
)

// DefaultDeliveryTimeout bounds one background dispatch.
const DefaultDeliveryTimeout = 30 * time.Second

// UserLookup resolves recipients to their device tokens.
type UserLookup interface {
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// Observer records delivery outcomes. *metrics.Collector implements it.
type Observer interface {
	ObserveNotification(kind, result string)
}

// Dispatcher fans expense events out to eligible participants.
// Dispatch always runs in the background; callers never wait on delivery
// and never see delivery errors.
type Dispatcher struct {
	users    UserLookup
	pusher   Pusher
	observer Observer
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(users UserLookup, pusher Pusher, observer Observer) *Dispatcher {
	return &Dispatcher{
		users:    users,
		pusher:   pusher,
		observer: observer,
		timeout:  DefaultDeliveryTimeout,
	}
}

// Recipient is one participant due a notification.
type Recipient struct {
	User   *models.User
	Amount float64
}

// Recipients returns the participants eligible for a notification about
// expense: everyone except the payer, those already paid and deleted ones.
func Recipients(expense models.Expense) []models.Participant {
	var out []models.Participant
	for _, p := range expense.Participants {
		if p.UserID == "" || p.UserID == expense.PaidBy || p.Paid || p.IsDeleted {
			continue
		}
		out = append(out, p)
	}
	return out
}

// resolve narrows Recipients to users with a registered device token.
func (d *Dispatcher) resolve(ctx context.Context, expense models.Expense) ([]Recipient, error) {
	participants := Recipients(expense)
	if len(participants) == 0 {
		return nil, nil
	}

	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	users, err := d.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}

	var recipients []Recipient
	for _, p := range participants {
		u, ok := users[p.UserID]
		if !ok || !u.HasPushToken() {
			continue
		}
		recipients = append(recipients, Recipient{User: u, Amount: p.AmountOwed})
	}
	return recipients, nil
}

// NotifyNewExpense announces a new expense to its eligible participants.
// It returns immediately.
func (d *Dispatcher) NotifyNewExpense(groupID string, expense models.Expense) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		recipients, err := d.resolve(ctx, expense)
		if err != nil {
			slog.Error("New expense notification failed", "group_id", groupID, "expense_id", expense.ID, "error", err)
			return
		}
		if len(recipients) == 0 {
			slog.Debug("No recipients for new expense", "group_id", groupID, "expense_id", expense.ID)
			return
		}
		d.deliver(ctx, TypeNewExpense, groupID, expense, recipients)
	}()
}

// NotifyReminder sends payment reminders for expense. The recipient count
// is computed before returning; delivery continues in the background.
// A count of 0 is not an error.
func (d *Dispatcher) NotifyReminder(ctx context.Context, groupID string, expense models.Expense) (int, error) {
	recipients, err := d.resolve(ctx, expense)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.deliver(ctx, TypePaymentReminder, groupID, expense, recipients)
	}()
	return len(recipients), nil
}

// Wait blocks until every background dispatch has settled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// deliver pushes to every recipient concurrently and logs a summary once
// all deliveries settle. A failed delivery never stops the others.
func (d *Dispatcher) deliver(ctx context.Context, kind, groupID string, expense models.Expense, recipients []Recipient) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, r := range recipients {
		wg.Add(1)
		go func(r Recipient) {
			defer wg.Done()

			err := d.pusher.Push(ctx, r.User.PushToken, composeMessage(kind, groupID, expense, r))
			result := "sent"
			if err != nil {
				result = "failed"
				mu.Lock()
				failed++
				mu.Unlock()
				slog.Warn("Push notification failed",
					"type", kind,
					"user_id", r.User.ID,
					"expense_id", expense.ID,
					"error", err,
				)
			}
			if d.observer != nil {
				d.observer.ObserveNotification(kind, result)
			}
		}(r)
	}
	wg.Wait()

	slog.Info("Notifications dispatched",
		"type", kind,
		"group_id", groupID,
		"expense_id", expense.ID,
		"recipients", len(recipients),
		"failed", failed,
	)
}

func composeMessage(kind, groupID string, expense models.Expense, r Recipient) Message {
	msg := Message{
		Data: map[string]string{
			"groupId":   groupID,
			"type":      kind,
			"expenseId": expense.ID,
		},
	}
	switch kind {
	case TypePaymentReminder:
		msg.Title = "Recordatorio de pago pendiente"
		msg.Body = fmt.Sprintf("%s, recuerda que debes pagar $%.2f por el gasto: %q", r.User.Name, r.Amount, expense.Description)
	default:
		msg.Title = "Nuevo gasto agregado"
		msg.Body = fmt.Sprintf("%s, nuevo gasto: %s, debes pagar $%.2f", r.User.Name, expense.Description, r.Amount)
	}
	return msg
}
