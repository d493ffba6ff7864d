package httpapi

import (
	"net/http"

	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/service"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns a session.
func Register(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		session, err := identity.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusCreated, "user registered", session)
	}
}

// Login exchanges credentials for a session.
func Login(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			WriteError(w, r, err)
			return
		}

		session, err := identity.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeOK(w, http.StatusOK, "login successful", session)
	}
}

// Logout acknowledges a logout. Tokens are stateless and simply expire.
func Logout(identity *service.IdentityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity.Logout(r.Context(), middleware.GetUserID(r.Context()))
		writeOK(w, http.StatusOK, "logout successful", nil)
	}
}
