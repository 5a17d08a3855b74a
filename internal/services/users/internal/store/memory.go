package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps users in process memory. It is meant for tests and local runs
// of a single instance: uniqueness is only guaranteed within the process.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[string]User
	roles  map[string]int64
	now    func() time.Time
}

// NewMemoryStore returns an empty store seeded with the given roles
func NewMemoryStore(roles ...string) *MemoryStore {
	s := &MemoryStore{
		users: make(map[string]User),
		roles: make(map[string]int64, len(roles)),
		now:   time.Now,
	}

	for i, r := range roles {
		s.roles[r] = int64(i + 1)
	}

	return s
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return User{}, ErrNotFound
	}

	return clone(u), nil
}

func (s *MemoryStore) GetRoles(ctx context.Context, email string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return []string{}, nil
	}

	return slices.Clone(u.Roles), nil
}

func (s *MemoryStore) GetRoleID(ctx context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.roles[name]
	if !ok {
		return 0, ErrNotFound
	}

	return id, nil
}

func (s *MemoryStore) InsertUserIfAbsent(ctx context.Context, r CreateUserRequest) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[r.Email]; ok {
		return User{}, ErrExists
	}

	names := make([]string, 0, len(r.RoleIDs))
	for _, id := range r.RoleIDs {
		name, ok := s.roleName(id)
		if !ok {
			return User{}, fmt.Errorf("role %d: %w", id, ErrNotFound)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	s.nextID++
	now := s.now()
	u := User{
		Model: Model{
			CreatedAt: now,
			UpdatedAt: now,
		},
		ID:            s.nextID,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		Surname:       r.Surname,
		EmailVerified: r.EmailVerified,
		Roles:         slices.Compact(names),
	}
	s.users[r.Email] = u

	return clone(u), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) roleName(id int64) (string, bool) {
	for name, rid := range s.roles {
		if rid == id {
			return name, true
		}
	}
	return "", false
}

func clone(u User) User {
	u.Roles = slices.Clone(u.Roles)
	return u
}
