package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

type Store interface {
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetRoles(ctx context.Context, email string) ([]string, error)
	GetRoleID(ctx context.Context, name string) (int64, error)
	// InsertUserIfAbsent creates the user together with its role links in one atomic step.
	// It fails with ErrExists when the email is taken and leaves nothing behind on any failure.
	InsertUserIfAbsent(ctx context.Context, r CreateUserRequest) (User, error)
	Ping(ctx context.Context) error
}

type CreateUserRequest struct {
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	Surname       string
	EmailVerified bool
	RoleIDs       []int64
}
