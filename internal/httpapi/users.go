package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/service"
)

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type contactRequest struct {
	ContactID string `json:"contactId"`
	GroupID   string `json:"groupId"`
}

type updateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type pushTokenRequest struct {
	Token string `json:"fcmToken"`
}

// requireSelf rejects requests acting on another user's account.
func requireSelf(r *http.Request, userID string) error {
	if middleware.GetUserID(r.Context()) != userID {
		return apperr.Forbidden("cannot modify user %s", userID)
	}
	return nil
}

// userView returns the full record only for the caller. Other accounts are
// reduced to their display reference so device tokens and contacts stay private.
func userView(r *http.Request, u *models.User) any {
	if u.ID == middleware.GetUserID(r.Context()) {
		return u
	}
	return u.Ref()
}

func userRefs(users []*models.User) []models.UserRef {
	refs := make([]models.UserRef, len(users))
	for i, u := range users {
		refs[i] = u.Ref()
	}
	return refs
}

// ListUsers returns every user.
func ListUsers(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := identity.List(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "users found", userRefs(users))
	}
}

// QueryUser looks a user up by ?id= or ?email=.
func QueryUser(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var (
			id    = q.Get("id")
			email = q.Get("email")
		)

		switch {
		case id != "":
			user, err := identity.Get(r.Context(), id)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			writeOK(w, http.StatusOK, "user found", userView(r, user))
		case email != "":
			user, err := identity.FindByEmail(r.Context(), email)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			writeOK(w, http.StatusOK, "user found", userView(r, user))
		default:
			WriteError(w, r, apperr.Validation("id or email query parameter is required"))
		}
	}
}

// ChangePassword replaces the caller's password.
func ChangePassword(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		userID := middleware.GetUserID(r.Context())
		if err := identity.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "password updated", nil)
	}
}

// AddContactAndMember links a contact to the caller and adds it to a group.
func AddContactAndMember(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		res, err := identity.AddContactAndMember(r.Context(), middleware.GetUserID(r.Context()), req.ContactID, req.GroupID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "contact added to group", res)
	}
}

// UpdateUser changes the caller's name or email.
func UpdateUser(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if err := requireSelf(r, userID); err != nil {
			WriteError(w, r, err)
			return
		}

		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		user, err := identity.Update(r.Context(), userID, service.UserUpdate{Name: req.Name, Email: req.Email})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "user updated", user)
	}
}

// DeleteUser removes the caller's account.
func DeleteUser(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if err := requireSelf(r, userID); err != nil {
			WriteError(w, r, err)
			return
		}

		if err := identity.Delete(r.Context(), userID); err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "user deleted", nil)
	}
}

// ListContacts returns the contacts of the user in the path, or of the
// caller when the route has no id.
func ListContacts(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if userID == "" {
			userID = middleware.GetUserID(r.Context())
		}

		contacts, err := identity.ListContacts(r.Context(), userID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "contacts found", userRefs(contacts))
	}
}

// AddContact adds a contact to the user in the path.
func AddContact(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if err := requireSelf(r, userID); err != nil {
			WriteError(w, r, err)
			return
		}

		var req contactRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		contacts, err := identity.AddContact(r.Context(), userID, req.ContactID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "contact added", contacts)
	}
}

// RemoveContact drops a contact from the user in the path.
func RemoveContact(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		userID := vars["id"]
		if err := requireSelf(r, userID); err != nil {
			WriteError(w, r, err)
			return
		}

		contacts, err := identity.RemoveContact(r.Context(), userID, vars["contactId"])
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "contact removed", contacts)
	}
}

// UpdatePushToken stores the caller's device token.
func UpdatePushToken(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := mux.Vars(r)["id"]
		if err := requireSelf(r, userID); err != nil {
			WriteError(w, r, err)
			return
		}

		var req pushTokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		user, err := identity.UpdatePushToken(r.Context(), userID, req.Token)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "push token updated", user)
	}
}
