package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/auth"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// IdentityService manages user accounts, credentials, contacts and device tokens.
type IdentityService struct {
	store         storage.Store
	authenticator auth.Authenticator
	jwtManager    *auth.JWTManager
}

// NewIdentityService creates a new identity service.
func NewIdentityService(store storage.Store, authenticator auth.Authenticator, jwtManager *auth.JWTManager) *IdentityService {
	return &IdentityService{
		store:         store,
		authenticator: authenticator,
		jwtManager:    jwtManager,
	}
}

// Session is the result of a successful registration or login.
type Session struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// UserUpdate lists the profile fields to change. Nil fields are left alone.
type UserUpdate struct {
	Name  *string
	Email *string
}

// ContactMembership is the result of AddContactAndMember.
type ContactMembership struct {
	Contact models.UserRef `json:"contact"`
	Group   GroupRef       `json:"group"`
}

// GroupRef is the short form of a group.
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Register creates a new account and signs a token for it.
func (s *IdentityService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	slog.Info("Register request received", "email", email)

	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}

	user, err := s.authenticator.Register(ctx, email, name, password)
	if err != nil {
		slog.Warn("Registration failed", "email", email, "error", err)
		return nil, err
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, err
	}

	slog.Info("User registered", "user_id", user.ID)
	return &Session{Token: token, User: user}, nil
}

// Login checks credentials and signs a token.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*Session, error) {
	slog.Info("Login request received", "email", email)

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	user, err := s.authenticator.Authenticate(ctx, email, password)
	if err != nil {
		slog.Warn("Login failed", "email", email, "error", err)
		return nil, err
	}

	token, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, err
	}

	slog.Info("User logged in", "user_id", user.ID)
	return &Session{Token: token, User: user}, nil
}

// Logout is stateless: tokens simply expire.
func (s *IdentityService) Logout(ctx context.Context, userID string) {
	slog.Info("Logout request received", "user_id", userID)
}

// ChangePassword replaces the user's password. A wrong current password
// yields apperr.ErrWrongPassword and leaves the stored hash untouched.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, current, next string) error {
	slog.Info("ChangePassword request received", "user_id", userID)

	if err := s.authenticator.ChangeCredential(ctx, userID, current, next); err != nil {
		slog.Warn("ChangePassword failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// Get returns a user by ID.
func (s *IdentityService) Get(ctx context.Context, userID string) (*models.User, error) {
	return loadUser(ctx, s.store, userID)
}

// FindByEmail returns a user by email address.
func (s *IdentityService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user", email)
	}
	return user, nil
}

// List returns every user.
func (s *IdentityService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Update changes a user's name and/or email.
func (s *IdentityService) Update(ctx context.Context, userID string, update UserUpdate) (*models.User, error) {
	slog.Info("UpdateUser request received", "user_id", userID)

	if update.Name == nil && update.Email == nil {
		return nil, apperr.Validation("nothing to update")
	}

	user, err := loadUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
		user.Name = name
	}
	if update.Email != nil {
		email := models.NormalizeEmail(*update.Email)
		if email == "" {
			return nil, apperr.Validation("email cannot be empty")
		}
		user.Email = email
	}

	if _, err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			return nil, auth.ErrEmailExists
		}
		return nil, err
	}
	return user, nil
}

// Delete removes a user account. Group documents keep their references.
func (s *IdentityService) Delete(ctx context.Context, userID string) error {
	slog.Info("DeleteUser request received", "user_id", userID)

	deleted, err := s.store.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("user", userID)
	}
	return nil
}

// UpdatePushToken stores the device token used for push notifications.
func (s *IdentityService) UpdatePushToken(ctx context.Context, userID, token string) (*models.User, error) {
	user, err := loadUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	user.PushToken = strings.TrimSpace(token)
	if _, err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	slog.Info("Push token updated", "user_id", userID, "registered", user.HasPushToken())
	return user, nil
}

// AddContact adds contactID to userID's contacts. Adding twice is a no-op.
func (s *IdentityService) AddContact(ctx context.Context, userID, contactID string) ([]*models.User, error) {
	slog.Info("AddContact request received", "user_id", userID, "contact_id", contactID)

	if err := s.ensureContact(ctx, userID, contactID); err != nil {
		return nil, err
	}
	return s.store.ListContacts(ctx, userID)
}

// RemoveContact drops contactID from userID's contacts.
func (s *IdentityService) RemoveContact(ctx context.Context, userID, contactID string) ([]*models.User, error) {
	slog.Info("RemoveContact request received", "user_id", userID, "contact_id", contactID)

	if _, err := loadUser(ctx, s.store, userID); err != nil {
		return nil, err
	}
	removed, err := s.store.RemoveContact(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, apperr.NotFound("contact", contactID)
	}
	return s.store.ListContacts(ctx, userID)
}

// ListContacts returns the user's contacts.
func (s *IdentityService) ListContacts(ctx context.Context, userID string) ([]*models.User, error) {
	if _, err := loadUser(ctx, s.store, userID); err != nil {
		return nil, err
	}
	return s.store.ListContacts(ctx, userID)
}

// AddContactAndMember links contactID as userID's contact, then makes it an
// active member of groupID. A failure in the second step keeps the contact.
func (s *IdentityService) AddContactAndMember(ctx context.Context, userID, contactID, groupID string) (*ContactMembership, error) {
	slog.Info("AddContactAndMember request received",
		"user_id", userID,
		"contact_id", contactID,
		"group_id", groupID,
	)

	if contactID == "" || groupID == "" {
		return nil, apperr.Validation("contactId and groupId are required")
	}

	var (
		contact *models.User
		group   *models.Group
	)
	err := runSaga(ctx, "add-contact-and-member",
		sagaStep{name: "ensure-contact", run: func(ctx context.Context) error {
			if err := s.ensureContact(ctx, userID, contactID); err != nil {
				return err
			}
			var err error
			contact, err = loadUser(ctx, s.store, contactID)
			return err
		}},
		sagaStep{name: "ensure-membership", run: func(ctx context.Context) error {
			var err error
			group, err = mutateGroup(ctx, s.store, groupID, func(g *models.Group) error {
				if !g.EnsureMember(contactID) {
					return errUnchanged
				}
				return nil
			})
			return err
		}},
	)
	if err != nil {
		return nil, err
	}

	return &ContactMembership{
		Contact: contact.Ref(),
		Group:   GroupRef{ID: group.ID, Name: group.Name},
	}, nil
}

// ensureContact validates both users and adds the relationship if missing.
func (s *IdentityService) ensureContact(ctx context.Context, userID, contactID string) error {
	if contactID == "" {
		return apperr.Validation("contactId is required")
	}
	if userID == contactID {
		return apperr.Validation("a user cannot be their own contact")
	}
	user, err := loadUser(ctx, s.store, userID)
	if err != nil {
		return err
	}
	if _, err := loadUser(ctx, s.store, contactID); err != nil {
		return err
	}
	if user.HasContact(contactID) {
		return nil
	}
	if _, err := s.store.AddContact(ctx, userID, contactID); err != nil {
		return err
	}
	return nil
}
