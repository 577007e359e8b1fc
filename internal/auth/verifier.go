package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"oneflow/internal/identity"
)

// Verifier validates plaintext credentials against stored hashes.
type Verifier struct {
	store identity.Store
}

func NewVerifier(store identity.Store) *Verifier {
	return &Verifier{store: store}
}

// NormalizeEmail lowercases and trims an email the way the store indexes it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Verify looks up the identity by normalized email and compares the password
// hash. Unknown user, wrong password and deactivated identity all return the
// same ErrInvalidCredentials so callers cannot enumerate accounts.
func (v *Verifier) Verify(ctx context.Context, email, password string) (*identity.Identity, error) {
	id, err := v.store.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !id.Active {
		return nil, ErrInvalidCredentials
	}

	return id, nil
}
