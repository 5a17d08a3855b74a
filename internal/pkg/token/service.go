package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rfsnab/auth/internal/pkg/serr"
)

// Config holds the settings of a token Service
type Config struct {
	Keys       Keys
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Service issues, validates and refreshes signed bearer tokens.
// It keeps no state besides its configuration and is safe for concurrent use.
type Service struct {
	keys       Keys
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
	inspector  *jwt.Parser
}

func NewService(cfg Config) *Service {
	if cfg.Keys == nil {
		panic("token keys are required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{cfg.Keys.Method().Alg()}),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Service{
		keys:       cfg.Keys,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
		parser:     jwt.NewParser(opts...),
		inspector: jwt.NewParser(
			jwt.WithValidMethods([]string{cfg.Keys.Method().Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
}

// AccessTTL is the lifetime of access tokens issued by s
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

// Issue signs a fresh access and refresh token for subject.
// The caller is responsible for having verified the subject.
func (s *Service) Issue(subject string) (Pair, error) {
	if subject == "" {
		return Pair{}, fmt.Errorf("%w: empty token subject", serr.ErrValidation)
	}

	at, err := s.sign(subject, s.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	rt, err := s.sign(subject, s.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{
		AccessToken:  at,
		RefreshToken: rt,
		ExpiresIn:    s.accessTTL,
	}, nil
}

// Validate reports whether tok is well formed, carries a valid signature and has not expired.
// It never fails on untrusted input.
func (s *Service) Validate(tok string) bool {
	_, err := s.parse(tok)
	return err == nil
}

// ExtractSubject returns the subject of a valid token and fails for anything else
func (s *Service) ExtractSubject(tok string) (string, error) {
	c, err := s.parse(tok)
	if err != nil {
		return "", err
	}

	return c.Subject, nil
}

// IsExpired compares the embedded expiry with the current time.
// Tokens that cannot be parsed or verified are reported as expired.
func (s *Service) IsExpired(tok string) bool {
	var c jwt.RegisteredClaims
	_, err := s.inspector.ParseWithClaims(tok, &c, s.keyFunc)
	if err != nil || c.ExpiresAt == nil {
		return true
	}

	return !s.now().Before(c.ExpiresAt.Time)
}

// Inspect returns the claims of a valid token
func (s *Service) Inspect(tok string) (Claims, error) {
	c, err := s.parse(tok)
	if err != nil {
		return Claims{}, err
	}

	res := Claims{
		ID:      c.ID,
		Subject: c.Subject,
		Issuer:  c.Issuer,
	}
	if c.IssuedAt != nil {
		res.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		res.ExpiresAt = c.ExpiresAt.Time
	}

	return res, nil
}

// Refresh issues a new pair for the subject of a valid refresh token.
// The old refresh token stays usable until it expires: there is no revocation store.
func (s *Service) Refresh(refreshToken string) (Pair, error) {
	subject, err := s.ExtractSubject(refreshToken)
	if err != nil {
		return Pair{}, err
	}

	return s.Issue(subject)
}

func (s *Service) sign(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	return jwt.NewWithClaims(s.keys.Method(), claims).SignedString(s.keys.SignKey())
}

func (s *Service) parse(tok string) (*jwt.RegisteredClaims, error) {
	var c jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(tok, &c, s.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", serr.ErrInvalidToken, serr.ErrExpiredToken)
		}
		return nil, fmt.Errorf("%w: %v", serr.ErrInvalidToken, err)
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", serr.ErrInvalidToken)
	}

	return &c, nil
}

func (s *Service) keyFunc(*jwt.Token) (any, error) {
	return s.keys.VerifyKey(), nil
}
