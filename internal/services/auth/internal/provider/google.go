package provider

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleIssuer       string = "https://accounts.google.com"
	googleScopeEmail   string = "email"
	googleScopeProfile string = "profile"
)

// Google implements the identityProvider interface for Google OAuth
type Google struct {
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// GoogleConfig holds the configuration for the Google OAuth provider
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type googleClaims struct {
	Sub        string `json:"sub,omitempty"`
	Email      string `json:"email,omitempty"`
	Verified   bool   `json:"email_verified,omitempty"`
	Name       string `json:"name,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
}

// NewGoogle creates a new Google OAuth provider. It fetches the issuer's discovery document.
func NewGoogle(ctx context.Context, google GoogleConfig) (*Google, error) {
	p, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("new oidc provider: %w", err)
	}

	return &Google{
		cfg: &oauth2.Config{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, googleScopeProfile, googleScopeEmail},
			Endpoint:     endpoints.Google,
		},
		verifier: p.Verifier(&oidc.Config{ClientID: google.ClientID}),
	}, nil
}

// LoginURL generates the Google OAuth login URL with the given state
func (g *Google) LoginURL(state, nonce string) (string, error) {
	return g.cfg.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// Exchange redeems the authorization code and verifies the returned id token.
// Accounts without a verified email are refused.
func (g *Google) Exchange(ctx context.Context, code, nonce string) (oauth.User, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return oauth.User{}, err
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return oauth.User{}, fmt.Errorf("token response has no id_token")
	}

	idTok, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return oauth.User{}, fmt.Errorf("verify id token: %w", err)
	}

	if idTok.Nonce != nonce {
		return oauth.User{}, fmt.Errorf("%w: nonce mismatch", oauth.ErrAuthFailed)
	}

	var usr googleClaims
	if err := idTok.Claims(&usr); err != nil {
		return oauth.User{}, fmt.Errorf("read claims: %w", err)
	}

	if usr.Email == "" || !usr.Verified {
		return oauth.User{}, fmt.Errorf("%w: google account email is not verified", oauth.ErrAuthFailed)
	}

	return oauth.User{
		ID:            usr.Sub,
		Email:         usr.Email,
		EmailVerified: true,
		FirstName:     nameOrDefault(usr.GivenName, nameOrDefault(usr.Name, defaultFirstName)),
		LastName:      nameOrDefault(usr.FamilyName, defaultLastName),
	}, nil
}
