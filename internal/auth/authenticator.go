package auth

import (
	"context"

	"github.com/mmynk/splitledger/internal/models"
)

// Authenticator owns user credentials. IdentityService depends on it rather
// than on bcrypt directly.
type Authenticator interface {
	// Register stores a new account. Email is normalized by the implementation.
	Register(ctx context.Context, email, name, credential string) (*models.User, error)

	// Authenticate returns the account for email when credential matches.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ChangeCredential checks current before storing next.
	ChangeCredential(ctx context.Context, userID, current, next string) error

	ValidateCredential(credential string) error
}
