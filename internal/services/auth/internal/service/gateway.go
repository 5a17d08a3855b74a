package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/rfsnab/auth/internal/pkg/credential"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/pkg/token"
	"github.com/rfsnab/auth/internal/services/auth/internal/identity"
	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"github.com/rfsnab/auth/internal/services/auth/internal/otc"
)

// Token flows reported to the issue observer
const (
	FlowPassword = "password"
	FlowRefresh  = "refresh"
	FlowOAuth    = "oauth"
)

// users is the identity store, reached over the network
type users interface {
	Authenticate(ctx context.Context, email, password string) (identity.User, error)
	SignUp(ctx context.Context, r identity.SignUpRequest) (identity.User, error)
	LoginOrRegister(ctx context.Context, ext identity.ExternalIdentity) (identity.User, bool, error)
	Me(ctx context.Context, accessToken string) (identity.User, error)
}

type tokenIssuer interface {
	Issue(subject string) (token.Pair, error)
	Refresh(refreshToken string) (token.Pair, error)
}

// authenticator defines the interface for OAuth authentication flow management
type authenticator interface {
	LoginURL(env oauth.Env, provider string) (string, error)
	Exchange(ctx context.Context, env oauth.Env, provider, code, state string) (oauth.User, error)
}

// oneTimeCodeProvider stores token pairs behind short-lived single-use codes
type oneTimeCodeProvider interface {
	CreateCode(ctx context.Context, p token.Pair) (string, error)
	RedeemCode(ctx context.Context, code string) (token.Pair, error)
}

// Gateway is the front door for interactive and federated login
type Gateway struct {
	users    users
	tokens   tokenIssuer
	auth     authenticator
	otc      oneTimeCodeProvider
	origins  []*url.URL
	observer func(flow string)
}

// GatewayOption defines a functional option for configuring the Gateway
type GatewayOption func(*Gateway) *Gateway

func WithUsers(u users) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.users = u
		return g
	}
}

func WithTokens(t tokenIssuer) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.tokens = t
		return g
	}
}

func WithAuthenticator(a authenticator) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.auth = a
		return g
	}
}

func WithOTC(o oneTimeCodeProvider) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.otc = o
		return g
	}
}

// WithRedirectOrigins allows absolute post-login redirects to the given origins.
// Relative paths are always allowed.
func WithRedirectOrigins(origins ...*url.URL) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.origins = append(g.origins, origins...)
		return g
	}
}

// WithIssueObserver registers fn to be called with the flow name of every issued token pair
func WithIssueObserver(fn func(flow string)) GatewayOption {
	return func(g *Gateway) *Gateway {
		g.observer = fn
		return g
	}
}

// NewGateway creates a new Gateway with the provided options
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		observer: func(string) {},
	}
	for _, opt := range opts {
		g = opt(g)
	}

	if g.users == nil {
		panic("users client is required")
	}

	if g.tokens == nil {
		panic("token issuer is required")
	}

	if g.auth == nil {
		panic("oauth authenticator is required")
	}

	if g.otc == nil {
		panic("one-time code provider is required")
	}

	return g
}

type LoginResult struct {
	Tokens token.Pair
	User   identity.User
}

// Login verifies credentials with the users service and issues a token pair.
// Unknown email and wrong password produce the same error.
func (g *Gateway) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return LoginResult{}, serr.Wrap(serr.ErrValidation, nil, "email and password are required")
	}

	u, err := g.users.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}

	pair, err := g.issue(u.Email, FlowPassword)
	if err != nil {
		return LoginResult{}, err
	}

	slog.Info("user logged in", "user_id", u.ID)
	return LoginResult{Tokens: pair, User: u}, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token stays valid until it expires.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, serr.Wrap(serr.ErrValidation, nil, "refresh token is required")
	}

	pair, err := g.tokens.Refresh(refreshToken)
	if err != nil {
		return token.Pair{}, fmt.Errorf("refresh: %w", err)
	}

	g.observer(FlowRefresh)
	return pair, nil
}

// Logout does nothing: tokens are stateless and there is no revocation list
func (g *Gateway) Logout(ctx context.Context) error {
	return nil
}

func (g *Gateway) Register(ctx context.Context, r identity.SignUpRequest) (identity.User, error) {
	return g.users.SignUp(ctx, r)
}

func (g *Gateway) Me(ctx context.Context, accessToken string) (identity.User, error) {
	if accessToken == "" {
		return identity.User{}, serr.NewServiceError(nil, http.StatusUnauthorized, "authentication required")
	}

	return g.users.Me(ctx, accessToken)
}

type LoginRequest struct {
	Provider    string
	RedirectURL string
}

// LoginURL generates a login URL for the specified provider
func (g *Gateway) LoginURL(env oauth.Env, r LoginRequest) (string, error) {
	redirect, err := g.checkRedirect(r.RedirectURL)
	if err != nil {
		return "", err
	}

	if err := env.Save("redirect_url", redirect); err != nil {
		return "", fmt.Errorf("save redirect url: %w", err)
	}

	loginURL, err := g.auth.LoginURL(env, r.Provider)
	if err != nil {
		if errors.Is(err, oauth.ErrProviderNotFound) {
			sErr := serr.NewServiceError(err, http.StatusNotFound, "oauth provider not found")
			sErr.Env["provider"] = r.Provider
			return "", sErr
		}

		return "", fmt.Errorf("login url: %w", err)
	}

	return loginURL, nil
}

type AuthCallbackRequest struct {
	Provider string
	Code     string
	State    string
}

type AuthCallbackResponse struct {
	User        identity.User
	Created     bool
	Tokens      token.Pair
	RedirectURL string
	OTC         string
}

// AuthCallback completes a federated login: it exchanges the code with the provider,
// reconciles the external profile with a local account, and parks the issued tokens behind a one-time code
func (g *Gateway) AuthCallback(ctx context.Context, env oauth.Env, r AuthCallbackRequest) (resp AuthCallbackResponse, err error) {
	usr, err := g.auth.Exchange(ctx, env, r.Provider, r.Code, r.State)
	if err != nil {
		if errors.Is(err, oauth.ErrProviderNotFound) {
			sErr := serr.NewServiceError(err, http.StatusNotFound, "provider not found")
			sErr.Env["provider"] = r.Provider
			err = sErr
			return
		}

		if errors.Is(err, oauth.ErrAuthFailed) {
			sErr := serr.NewServiceError(err, http.StatusUnauthorized, "authentication failed")
			sErr.Env["provider"] = r.Provider
			err = sErr
			return
		}

		err = fmt.Errorf("exchange: %w", err)
		return
	}

	hash, err := placeholderHash()
	if err != nil {
		return
	}

	u, created, err := g.users.LoginOrRegister(ctx, identity.ExternalIdentity{
		Provider:       r.Provider,
		ProviderUserID: usr.ID,
		Email:          usr.Email,
		FirstName:      usr.FirstName,
		LastName:       usr.LastName,
		PasswordHash:   hash,
		EmailVerified:  true,
	})
	if err != nil {
		err = fmt.Errorf("login or register: %w", err)
		return
	}

	pair, err := g.issue(u.Email, FlowOAuth)
	if err != nil {
		return
	}

	code, err := g.otc.CreateCode(ctx, pair)
	if err != nil {
		err = fmt.Errorf("create exchange code: %w", err)
		return
	}

	redirect, loadErr := env.Load("redirect_url")
	if loadErr != nil || redirect == "" {
		redirect = "/"
	}

	slog.Info("federated login", "provider", r.Provider, "user_id", u.ID, "created", created)
	return AuthCallbackResponse{
		User:        u,
		Created:     created,
		Tokens:      pair,
		RedirectURL: withCode(redirect, code),
		OTC:         code,
	}, nil
}

// RedeemCode redeems a code for a token pair
func (g *Gateway) RedeemCode(ctx context.Context, code string) (token.Pair, error) {
	p, err := g.otc.RedeemCode(ctx, code)
	if err != nil {
		if errors.Is(err, otc.ErrCodeNotFound) {
			return token.Pair{}, serr.NewServiceError(err, http.StatusUnauthorized, "invalid or expired code")
		}

		return token.Pair{}, fmt.Errorf("redeem code: %w", err)
	}

	return p, nil
}

func (g *Gateway) issue(subject, flow string) (token.Pair, error) {
	pair, err := g.tokens.Issue(subject)
	if err != nil {
		return token.Pair{}, fmt.Errorf("issue tokens: %w", err)
	}

	g.observer(flow)
	return pair, nil
}

// checkRedirect accepts local paths and URLs on an allowed origin; empty means "/"
func (g *Gateway) checkRedirect(raw string) (string, error) {
	if raw == "" {
		return "/", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", serr.Wrap(serr.ErrValidation, err, "malformed redirect url")
	}

	if !u.IsAbs() && u.Host == "" && strings.HasPrefix(u.Path, "/") {
		return u.String(), nil
	}

	for _, o := range g.origins {
		if u.Scheme == o.Scheme && u.Host == o.Host {
			return u.String(), nil
		}
	}

	return "", serr.Wrap(serr.ErrValidation, nil, "redirect url is not allowed")
}

func withCode(redirect, code string) string {
	u, err := url.Parse(redirect)
	if err != nil {
		return "/?otc=" + url.QueryEscape(code)
	}

	q := u.Query()
	q.Set("otc", code)
	u.RawQuery = q.Encode()
	return u.String()
}

// placeholderHash hashes a random credential nobody will ever learn
func placeholderHash() (string, error) {
	p, err := credential.Placeholder()
	if err != nil {
		return "", fmt.Errorf("generate placeholder: %w", err)
	}

	hash, err := credential.Hash(p)
	if err != nil {
		return "", fmt.Errorf("hash placeholder: %w", err)
	}

	return hash, nil
}
