package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rfsnab/auth/internal/pkg/credential"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/services/users/internal/store"
)

// ExternalIdentity is a profile already verified by a third party identity provider
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	// PasswordHash is an optional bcrypt hash of a placeholder chosen by the caller
	PasswordHash string
}

type accounts interface {
	FindByEmail(ctx context.Context, email string) (store.User, error)
	Register(ctx context.Context, r RegisterRequest) (store.User, error)
}

// Reconciler maps a federated login onto exactly one local account
type Reconciler struct {
	accounts accounts
}

func NewReconciler(a accounts) *Reconciler {
	if a == nil {
		panic("accounts are required")
	}

	return &Reconciler{accounts: a}
}

// LoginOrRegister returns the account for ext.Email, creating it on first sight.
// An existing account is returned unchanged. The reconciler takes no locks:
// a concurrent creation surfaces as ErrAlreadyExists and the winner is read back.
func (r *Reconciler) LoginOrRegister(ctx context.Context, ext ExternalIdentity) (store.User, bool, error) {
	email := normalizeEmail(ext.Email)
	if email == "" {
		return store.User{}, false, serr.Wrap(serr.ErrValidation, nil, "external identity has no email")
	}

	u, err := r.accounts.FindByEmail(ctx, email)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, serr.ErrUserNotFound) {
		return store.User{}, false, fmt.Errorf("find user: %w", err)
	}

	hash, err := placeholderHash(ext.PasswordHash)
	if err != nil {
		return store.User{}, false, err
	}

	u, err = r.accounts.Register(ctx, RegisterRequest{
		Email:        email,
		PasswordHash: hash,
		Profile: Profile{
			FirstName: ext.FirstName,
			LastName:  ext.LastName,
		},
		EmailVerified: true,
	})
	if err != nil {
		if !errors.Is(err, serr.ErrAlreadyExists) {
			return store.User{}, false, fmt.Errorf("register user: %w", err)
		}

		u, err = r.accounts.FindByEmail(ctx, email)
		if err != nil {
			return store.User{}, false, fmt.Errorf("find user after conflict: %w", err)
		}

		return u, false, nil
	}

	slog.Info("federated account created", "provider", ext.Provider, "user_id", u.ID)
	return u, true, nil
}

// placeholderHash accepts a caller supplied bcrypt hash or hashes a fresh random secret.
// The plaintext never leaves this function.
func placeholderHash(supplied string) (string, error) {
	if supplied != "" && credential.IsHash(supplied) {
		return supplied, nil
	}

	secret, err := credential.Placeholder()
	if err != nil {
		return "", fmt.Errorf("generate placeholder: %w", err)
	}

	hash, err := credential.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("hash placeholder: %w", err)
	}

	return hash, nil
}
