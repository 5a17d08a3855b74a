package service

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/rfsnab/auth/internal/pkg/credential"
	"github.com/rfsnab/auth/internal/pkg/principal"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/services/users/internal/store"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 100
)

// Profile holds the descriptive fields of an account
type Profile struct {
	FirstName string
	LastName  string
	Surname   string
}

type RegisterRequest struct {
	Email         string
	PasswordHash  string
	Profile       Profile
	EmailVerified bool
}

type SignUpRequest struct {
	Email    string
	Password string
	Profile  Profile
}

// Identity owns user records and credential checks
type Identity struct {
	store       store.Store
	roles       *roleCatalog
	timeout     time.Duration
	defaultRole principal.Role
}

// IdentityOption defines a functional option for configuring the Identity service
type IdentityOption func(*Identity) *Identity

func WithStore(st store.Store) IdentityOption {
	return func(s *Identity) *Identity {
		s.store = st
		return s
	}
}

// WithStoreTimeout bounds every store round trip
func WithStoreTimeout(d time.Duration) IdentityOption {
	return func(s *Identity) *Identity {
		s.timeout = d
		return s
	}
}

func WithRoleCache(maxKeys int64) IdentityOption {
	return func(s *Identity) *Identity {
		s.roles = newRoleCatalog(maxKeys)
		return s
	}
}

func WithDefaultRole(r principal.Role) IdentityOption {
	return func(s *Identity) *Identity {
		s.defaultRole = r
		return s
	}
}

// NewIdentity creates a new Identity service with the provided options
func NewIdentity(opts ...IdentityOption) *Identity {
	s := &Identity{
		timeout:     5 * time.Second,
		defaultRole: principal.RoleUser,
	}
	for _, opt := range opts {
		s = opt(s)
	}

	if s.store == nil {
		panic("store is required")
	}

	if s.roles == nil {
		s.roles = newRoleCatalog(64)
	}

	return s
}

// VerifyCredentials returns the user when the password matches.
// Unknown email and wrong password produce the same error and take comparable time.
func (s *Identity) VerifyCredentials(ctx context.Context, email, password string) (store.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			credential.CompareDummy(password)
			return store.User{}, serr.ErrInvalidCredentials
		}

		return store.User{}, s.storeErr(err, "get user")
	}

	if !credential.Compare(u.PasswordHash, password) {
		return store.User{}, serr.ErrInvalidCredentials
	}

	return u, nil
}

// RolesOf returns the roles of the user. An unknown user has no roles.
func (s *Identity) RolesOf(ctx context.Context, email string) (principal.Roles, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	names, err := s.store.GetRoles(ctx, normalizeEmail(email))
	if err != nil {
		return nil, s.storeErr(err, "get roles")
	}

	roles := principal.NewRoles()
	for _, n := range names {
		r, err := principal.ParseRole(n)
		if err != nil {
			slog.Warn("skipping malformed role", "role", n, "error", err)
			continue
		}
		roles[r] = struct{}{}
	}

	return roles, nil
}

// Register creates the user with the default role attached in the same atomic step
func (s *Identity) Register(ctx context.Context, r RegisterRequest) (store.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	email := normalizeEmail(r.Email)
	if email == "" {
		return store.User{}, serr.Wrap(serr.ErrValidation, nil, "email is required")
	}
	if !credential.IsHash(r.PasswordHash) {
		return store.User{}, fmt.Errorf("register %s: password is not hashed", email)
	}

	roleIDs, err := s.roles.IDs(ctx, s.store, string(s.defaultRole))
	if err != nil {
		return store.User{}, s.storeErr(err, "resolve default role")
	}

	u, err := s.store.InsertUserIfAbsent(ctx, store.CreateUserRequest{
		Email:         email,
		PasswordHash:  r.PasswordHash,
		FirstName:     strings.TrimSpace(r.Profile.FirstName),
		LastName:      strings.TrimSpace(r.Profile.LastName),
		Surname:       strings.TrimSpace(r.Profile.Surname),
		EmailVerified: r.EmailVerified,
		RoleIDs:       roleIDs,
	})
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			return store.User{}, serr.Wrap(serr.ErrAlreadyExists, err, "user already exists")
		}

		return store.User{}, s.storeErr(err, "insert user")
	}

	return u, nil
}

// SignUp validates a self-service registration, hashes the password and registers the user
func (s *Identity) SignUp(ctx context.Context, r SignUpRequest) (store.User, error) {
	if err := validateSignUp(r); err != nil {
		return store.User{}, err
	}

	hash, err := credential.Hash(r.Password)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.Register(ctx, RegisterRequest{
		Email:        r.Email,
		PasswordHash: hash,
		Profile:      r.Profile,
	})
}

// FindByEmail is for trusted internal lookups only
func (s *Identity) FindByEmail(ctx context.Context, email string) (store.User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, serr.Wrap(serr.ErrUserNotFound, err, "user not found")
		}

		return store.User{}, s.storeErr(err, "get user")
	}

	return u, nil
}

// Ready reports whether the store can serve requests
func (s *Identity) Ready(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		return s.storeErr(err, "ping store")
	}
	return nil
}

func (s *Identity) Close() {
	s.roles.Close()
}

func (s *Identity) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Identity) storeErr(err error, op string) error {
	if isUnavailable(err) {
		return serr.Wrap(serr.ErrUpstreamUnavailable, err, "%s", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func validateSignUp(r SignUpRequest) error {
	email := normalizeEmail(r.Email)
	if email == "" {
		return serr.Wrap(serr.ErrValidation, nil, "email is required")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return serr.Wrap(serr.ErrValidation, err, "email is not valid")
	}

	n := utf8.RuneCountInString(r.Password)
	if n < minPasswordLen || n > maxPasswordLen {
		return serr.Wrap(serr.ErrValidation, nil, "password must be between %d and %d characters", minPasswordLen, maxPasswordLen)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
