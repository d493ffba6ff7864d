package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/auth"
)

func TestIdentityService_RegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.identity.Register(ctx, "Ana", "Ana@Example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "ana@example.com", session.User.Email)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := env.identity.Register(ctx, "Other", "ana@example.com", "password123")
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := env.identity.Register(ctx, "", "x@example.com", "password123")
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("password longer than bcrypt accepts", func(t *testing.T) {
		_, err := env.identity.Register(ctx, "Long", "long@example.com", strings.Repeat("a", 80))
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("login", func(t *testing.T) {
		got, err := env.identity.Login(ctx, "ana@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, session.User.ID, got.User.ID)
		assert.NotEmpty(t, got.Token)
	})

	t.Run("login with wrong password", func(t *testing.T) {
		_, err := env.identity.Login(ctx, "ana@example.com", "nope-nope")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestIdentityService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.newUser(t, "ana", "")

	err := env.identity.ChangePassword(ctx, ana.ID, "wrong-password", "newpassword1")
	require.ErrorIs(t, err, apperr.ErrWrongPassword)

	// The old password still works after a rejected change.
	_, err = env.identity.Login(ctx, ana.Email, "password123")
	require.NoError(t, err)

	err = env.identity.ChangePassword(ctx, ana.ID, "password123", "short")
	require.ErrorIs(t, err, apperr.ErrValidation)
	err = env.identity.ChangePassword(ctx, ana.ID, "password123", strings.Repeat("a", 80))
	require.ErrorIs(t, err, apperr.ErrValidation)

	require.NoError(t, env.identity.ChangePassword(ctx, ana.ID, "password123", "newpassword1"))

	_, err = env.identity.Login(ctx, ana.Email, "password123")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = env.identity.Login(ctx, ana.Email, "newpassword1")
	assert.NoError(t, err)
}

func TestIdentityService_Profile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.newUser(t, "ana", "")
	bob := env.newUser(t, "bob", "")

	t.Run("find by email", func(t *testing.T) {
		got, err := env.identity.FindByEmail(ctx, " BOB@example.com ")
		require.NoError(t, err)
		assert.Equal(t, bob.ID, got.ID)

		_, err = env.identity.FindByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update name", func(t *testing.T) {
		name := "Ana María"
		got, err := env.identity.Update(ctx, ana.ID, UserUpdate{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, name, got.Name)
	})

	t.Run("update to taken email", func(t *testing.T) {
		email := bob.Email
		_, err := env.identity.Update(ctx, ana.ID, UserUpdate{Email: &email})
		assert.ErrorIs(t, err, auth.ErrEmailExists)
	})

	t.Run("update nothing", func(t *testing.T) {
		_, err := env.identity.Update(ctx, ana.ID, UserUpdate{})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("push token", func(t *testing.T) {
		got, err := env.identity.UpdatePushToken(ctx, ana.ID, "device-1")
		require.NoError(t, err)
		assert.True(t, got.HasPushToken())
	})

	t.Run("list and delete", func(t *testing.T) {
		users, err := env.identity.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)

		require.NoError(t, env.identity.Delete(ctx, bob.ID))
		assert.ErrorIs(t, env.identity.Delete(ctx, bob.ID), apperr.ErrNotFound)
	})
}

func TestIdentityService_Contacts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.newUser(t, "ana", "")
	bob := env.newUser(t, "bob", "")

	contacts, err := env.identity.AddContact(ctx, ana.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, bob.ID, contacts[0].ID)

	// Adding the same contact again is a no-op.
	contacts, err = env.identity.AddContact(ctx, ana.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, contacts, 1)

	// The relationship is one-way.
	bobContacts, err := env.identity.ListContacts(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobContacts)

	_, err = env.identity.AddContact(ctx, ana.ID, ana.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.identity.AddContact(ctx, ana.ID, "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	contacts, err = env.identity.RemoveContact(ctx, ana.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	_, err = env.identity.RemoveContact(ctx, ana.ID, bob.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestIdentityService_AddContactAndMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.newUser(t, "ana", "")
	bob := env.newUser(t, "bob", "")
	group := env.newGroup(t, ana, "Viaje")

	res, err := env.identity.AddContactAndMember(ctx, ana.ID, bob.ID, group.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, res.Contact.ID)
	assert.Equal(t, group.ID, res.Group.ID)

	members, err := env.groups.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	found, deleted := memberState(members, bob.ID)
	assert.True(t, found)
	assert.False(t, deleted)

	// Running it again converges without duplicating anything.
	_, err = env.identity.AddContactAndMember(ctx, ana.ID, bob.ID, group.ID)
	require.NoError(t, err)
	members, err = env.groups.ListMembers(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	t.Run("failure in membership step keeps the contact", func(t *testing.T) {
		carla := env.newUser(t, "carla", "")

		_, err := env.identity.AddContactAndMember(ctx, ana.ID, carla.ID, "missing-group")
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		var sagaErr *SagaError
		require.True(t, errors.As(err, &sagaErr))
		assert.Equal(t, "ensure-membership", sagaErr.Step)
		assert.Equal(t, []string{"ensure-contact"}, sagaErr.Completed)
		assert.True(t, IsSagaStep(err, "ensure-membership"))

		contacts, err := env.identity.ListContacts(ctx, ana.ID)
		require.NoError(t, err)
		var ids []string
		for _, c := range contacts {
			ids = append(ids, c.ID)
		}
		assert.Contains(t, ids, carla.ID)
	})
}
