package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// noPushToken is the placeholder older mobile clients store when the device
// has not registered for notifications yet.
const noPushToken = "none"

// User represents a registered user account.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string `json:"id" bson:"_id"`

	// Name is the display name of the user.
	Name string `json:"name" bson:"name"`

	// Email is the user's email address (unique, stored lower-cased).
	Email string `json:"email" bson:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// Never serialized to clients.
	PasswordHash string `json:"-" bson:"password_hash"`

	// PushToken is the device token used for push notifications.
	PushToken string `json:"fcmToken,omitempty" bson:"fcm_token"`

	// Contacts are the IDs of users this user has a contact relationship with.
	Contacts []string `json:"contacts" bson:"contacts"`

	// CreatedAt is the Unix timestamp when the user account was created.
	CreatedAt int64 `json:"createdAt" bson:"created_at"`

	// UpdatedAt is the Unix timestamp of the last profile change.
	UpdatedAt int64 `json:"updatedAt" bson:"updated_at"`
}

// NewUser creates a new User with a generated ID and timestamps.
func NewUser(email, name, passwordHash string) *User {
	now := time.Now().Unix()
	return &User{
		ID:           uuid.New().String(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Contacts:     []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPushToken reports whether the user registered a usable device token.
func (u *User) HasPushToken() bool {
	token := strings.TrimSpace(u.PushToken)
	return token != "" && token != noPushToken
}

// HasContact reports whether contactID is in the user's contact set.
func (u *User) HasContact(contactID string) bool {
	for _, c := range u.Contacts {
		if c == contactID {
			return true
		}
	}
	return false
}

// Ref returns the display reference for the user.
func (u *User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}
