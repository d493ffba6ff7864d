// Package notify delivers push notifications about expenses to group members.
package notify

import (
	"context"
	"log/slog"
)

// Notification types carried in the payload.
const (
	TypeNewExpense      = "new_expense"
	TypePaymentReminder = "payment_reminder"
)

// Message is one push notification addressed to a device token.
type Message struct {
	Title string
	Body  string
	// Data is the structured payload: groupId, type and expenseId.
	Data map[string]string
}

// Pusher delivers a message to one device.
type Pusher interface {
	Push(ctx context.Context, token string, msg Message) error
}

// LogPusher only logs messages. It is used when no push transport is configured.
type LogPusher struct{}

// Push logs the message at debug level.
func (LogPusher) Push(_ context.Context, token string, msg Message) error {
	slog.Debug("Push notification (log only)",
		"token", token,
		"title", msg.Title,
		"type", msg.Data["type"],
		"expense_id", msg.Data["expenseId"],
	)
	return nil
}
