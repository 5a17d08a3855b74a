package store

import "time"

type Model struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	Model
	ID            int64
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	Surname       string
	EmailVerified bool
	Roles         []string
}
