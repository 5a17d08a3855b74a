package token

import "time"

// Claims is the decoded content of a token
type Claims struct {
	ID        string
	Subject   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is what a successful login or refresh hands out
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}
