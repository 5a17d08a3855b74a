package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"golang.org/x/oauth2"
)

var (
	ErrProviderConflict = errors.New("provider already exists")
	ErrProviderNotFound = errors.New("provider not found")
	ErrAuthFailed       = errors.New("auth failed")
)

// User is the profile an identity provider vouches for
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
}

// Env keeps per-flow values between the login redirect and the callback
type Env interface {
	Save(key, val string) error
	Load(key string) (string, error)
}

type identityProvider interface {
	LoginURL(state, nonce string) (string, error)
	// Exchange redeems code and checks the provider's nonce, if it issues one, against nonce
	Exchange(ctx context.Context, code, nonce string) (User, error)
}

type Authenticator struct {
	providers map[string]identityProvider
	mu        sync.RWMutex
}

func NewAuthenticator() *Authenticator {
	return &Authenticator{
		providers: make(map[string]identityProvider),
	}
}

func (a *Authenticator) Use(name string, p identityProvider) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.providers[name]; ok {
		return ErrProviderConflict
	}

	a.providers[name] = p
	return nil
}

// Providers lists registered provider names in lexical order
func (a *Authenticator) Providers() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoginURL builds the provider redirect and stores a fresh state and nonce in env
func (a *Authenticator) LoginURL(env Env, provider string) (string, error) {
	p, err := a.getProvider(provider)
	if err != nil {
		return "", fmt.Errorf("get provider: %w", err)
	}

	state := randState(32)
	nonce := randState(32)
	if err := errors.Join(env.Save("state", state), env.Save("nonce", nonce)); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}

	url, err := p.LoginURL(state, nonce)
	if err != nil {
		return "", fmt.Errorf("get login url: %w", err)
	}

	return url, nil
}

// Exchange completes the flow. A state that does not match the stored one fails with ErrAuthFailed.
func (a *Authenticator) Exchange(ctx context.Context, env Env, provider, code, state string) (User, error) {
	p, err := a.getProvider(provider)
	if err != nil {
		return User{}, fmt.Errorf("get provider: %w", err)
	}

	saved, err := env.Load("state")
	if err != nil {
		// the browser did not bring back the cookie set by LoginURL
		if errors.Is(err, http.ErrNoCookie) {
			return User{}, ErrAuthFailed
		}
		return User{}, fmt.Errorf("load state: %w", err)
	}

	if saved == "" || saved != state {
		return User{}, ErrAuthFailed
	}

	nonce, err := env.Load("nonce")
	if err != nil {
		return User{}, fmt.Errorf("load nonce: %w", err)
	}

	usr, err := p.Exchange(ctx, code, nonce)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return User{}, err
		}

		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			if rerr.Response != nil {
				if rerr.Response.StatusCode == http.StatusBadRequest || rerr.Response.StatusCode == http.StatusUnauthorized {
					return User{}, ErrAuthFailed
				}
			}
		}

		return User{}, fmt.Errorf("exchange: %w", err)
	}

	return usr, nil
}

func (a *Authenticator) getProvider(name string) (identityProvider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.providers[name]
	if !ok {
		return nil, ErrProviderNotFound
	}

	return p, nil
}

func randState(size int) string {
	b := make([]byte, size)

	// rand.Read never returns an error
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
