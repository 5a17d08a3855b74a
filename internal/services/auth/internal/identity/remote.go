package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rfsnab/auth/internal/pkg/serr"
)

// User is the users service projection of an account
type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	FirstName     string    `json:"firstname"`
	LastName      string    `json:"lastname"`
	Surname       string    `json:"surname,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	Roles         []string  `json:"roles"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SignUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Surname   string `json:"surname,omitempty"`
}

// ExternalIdentity is a profile vouched for by a federated provider
type ExternalIdentity struct {
	Provider       string `json:"provider"`
	ProviderUserID string `json:"providerId"`
	Email          string `json:"email"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	// PasswordHash is the hashed placeholder credential
	PasswordHash  string `json:"password"`
	EmailVerified bool   `json:"emailVerified"`
}

// Remote talks to the users service over HTTP. Calls are not retried.
type Remote struct {
	base   *url.URL
	client *http.Client
}

func NewRemote(base *url.URL, timeout time.Duration) *Remote {
	if base == nil {
		panic("users service url is required")
	}

	return &Remote{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticate verifies credentials. Unknown email and wrong password both yield serr.ErrInvalidCredentials.
func (r *Remote) Authenticate(ctx context.Context, email, password string) (User, error) {
	var u User
	status, err := r.do(ctx, http.MethodPost, "/v1/users/authenticate", "", credentials{Email: email, Password: password}, &u)
	if err != nil {
		return User{}, err
	}

	switch status {
	case http.StatusOK:
		return u, nil
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return User{}, serr.ErrInvalidCredentials
	default:
		return User{}, unexpected("authenticate", status)
	}
}

func (r *Remote) SignUp(ctx context.Context, req SignUpRequest) (User, error) {
	var u User
	status, err := r.do(ctx, http.MethodPost, "/v1/users/signup", "", req, &u)
	if err != nil {
		return User{}, err
	}

	switch status {
	case http.StatusCreated, http.StatusOK:
		return u, nil
	case http.StatusConflict:
		return User{}, serr.Wrap(serr.ErrAlreadyExists, nil, "user already exists")
	case http.StatusBadRequest:
		return User{}, serr.Wrap(serr.ErrValidation, nil, "invalid sign up request")
	default:
		return User{}, unexpected("sign up", status)
	}
}

// LoginOrRegister reconciles ext with a local account. created reports whether the account is new.
func (r *Remote) LoginOrRegister(ctx context.Context, ext ExternalIdentity) (u User, created bool, err error) {
	status, err := r.do(ctx, http.MethodPost, "/v1/users/oauth2-login", "", ext, &u)
	if err != nil {
		return User{}, false, err
	}

	switch status {
	case http.StatusOK:
		return u, false, nil
	case http.StatusCreated:
		return u, true, nil
	case http.StatusBadRequest:
		return User{}, false, serr.Wrap(serr.ErrValidation, nil, "invalid external identity")
	default:
		return User{}, false, unexpected("oauth2 login", status)
	}
}

// Me resolves the account behind an access token
func (r *Remote) Me(ctx context.Context, accessToken string) (User, error) {
	var u User
	status, err := r.do(ctx, http.MethodGet, "/v1/users/me", accessToken, nil, &u)
	if err != nil {
		return User{}, err
	}

	switch status {
	case http.StatusOK:
		return u, nil
	case http.StatusUnauthorized:
		return User{}, serr.Wrap(serr.ErrInvalidToken, nil, "invalid or expired token")
	case http.StatusForbidden:
		return User{}, serr.NewServiceError(nil, http.StatusForbidden, "access denied")
	default:
		return User{}, unexpected("me", status)
	}
}

// Ready checks that the users service answers its liveness check
func (r *Remote) Ready(ctx context.Context) error {
	status, err := r.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return unexpected("health", status)
	}
	return nil
}

// do sends a JSON request and decodes a 2xx JSON response into out.
// Transport failures and undecodable bodies are reported as serr.ErrUpstreamUnavailable.
func (r *Remote) do(ctx context.Context, method, path, bearer string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.base.JoinPath(path).String(), body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, serr.Wrap(serr.ErrUpstreamUnavailable, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, serr.Wrap(serr.ErrUpstreamUnavailable, err, "decode %s response", path)
	}

	return resp.StatusCode, nil
}

func unexpected(op string, status int) error {
	return serr.Wrap(serr.ErrUpstreamUnavailable, fmt.Errorf("unexpected status code: %d", status), "users service %s", op)
}
