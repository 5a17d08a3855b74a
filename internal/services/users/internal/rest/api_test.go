package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rfsnab/auth/internal/pkg/middleware"
	"github.com/rfsnab/auth/internal/pkg/principal"
	"github.com/rfsnab/auth/internal/pkg/router"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/pkg/testutil"
	"github.com/rfsnab/auth/internal/services/users/internal/service"
	"github.com/rfsnab/auth/internal/services/users/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIdentity struct {
	signUpFunc            func(ctx context.Context, r service.SignUpRequest) (store.User, error)
	verifyCredentialsFunc func(ctx context.Context, email, password string) (store.User, error)
	findByEmailFunc       func(ctx context.Context, email string) (store.User, error)
}

func (m *mockIdentity) SignUp(ctx context.Context, r service.SignUpRequest) (store.User, error) {
	return m.signUpFunc(ctx, r)
}

func (m *mockIdentity) VerifyCredentials(ctx context.Context, email, password string) (store.User, error) {
	return m.verifyCredentialsFunc(ctx, email, password)
}

func (m *mockIdentity) FindByEmail(ctx context.Context, email string) (store.User, error) {
	return m.findByEmailFunc(ctx, email)
}

type mockReconciler struct {
	loginOrRegisterFunc func(ctx context.Context, ext service.ExternalIdentity) (store.User, bool, error)
}

func (m *mockReconciler) LoginOrRegister(ctx context.Context, ext service.ExternalIdentity) (store.User, bool, error) {
	return m.loginOrRegisterFunc(ctx, ext)
}

// asUser attaches a principal for every request
func asUser(subject string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, _ := principal.WithPrincipal(r.Context(), principal.Principal{
				Subject: subject,
				Roles:   principal.NewRoles(principal.RoleUser),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func anonymous() router.Middleware {
	return middleware.Authenticate()
}

func TestAPI_SignUp(t *testing.T) {
	ids := &mockIdentity{
		signUpFunc: func(ctx context.Context, r service.SignUpRequest) (store.User, error) {
			assert.Equal(t, "a@x.com", r.Email)
			assert.Equal(t, "Secret123", r.Password)
			assert.Equal(t, "Ann", r.Profile.FirstName)
			assert.Equal(t, "Sr", r.Profile.Surname)
			return store.User{ID: 1, Email: r.Email, PasswordHash: "$2a$10$hash", FirstName: "Ann", Roles: []string{"ROLE_USER"}}, nil
		},
	}
	api := NewAPI(ids, &mockReconciler{}, anonymous())

	rec := testutil.SendRequest(t, api, "POST", "/v1/users/signup", map[string]string{
		"email":     "a@x.com",
		"password":  "Secret123",
		"firstname": "Ann",
		"lastname":  "Lee",
		"surname":   "Sr",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hash")

	resp := testutil.ParseResponse[userResponse](t, rec)
	assert.Equal(t, int64(1), resp.ID)
	assert.Equal(t, "a@x.com", resp.Email)
	assert.Equal(t, []string{"ROLE_USER"}, resp.Roles)
}

func TestAPI_SignUp_Errors(t *testing.T) {
	tbl := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"duplicate", serr.Wrap(serr.ErrAlreadyExists, store.ErrExists, "user already exists"), http.StatusConflict, "already_exists"},
		{"validation", serr.Wrap(serr.ErrValidation, nil, "password must be between 8 and 100 characters"), http.StatusBadRequest, "validation_error"},
		{"store down", serr.Wrap(serr.ErrUpstreamUnavailable, errors.New("dial tcp"), "insert user"), http.StatusInternalServerError, "internal_error"},
	}

	for _, c := range tbl {
		t.Run(c.name, func(t *testing.T) {
			ids := &mockIdentity{
				signUpFunc: func(ctx context.Context, r service.SignUpRequest) (store.User, error) {
					return store.User{}, c.err
				},
			}
			api := NewAPI(ids, &mockReconciler{}, anonymous())

			rec := testutil.SendRequest(t, api, "POST", "/v1/users/signup", map[string]string{"email": "a@x.com", "password": "x"})
			assert.Equal(t, c.status, rec.Code)
			assert.Equal(t, c.code, testutil.ErrorCode(t, rec))
		})
	}
}

func TestAPI_SignUp_MalformedBody(t *testing.T) {
	api := NewAPI(&mockIdentity{}, &mockReconciler{}, anonymous())

	req := httptest.NewRequest("POST", "/v1/users/signup", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", testutil.ErrorCode(t, rec))
}

func TestAPI_Authenticate(t *testing.T) {
	ids := &mockIdentity{
		verifyCredentialsFunc: func(ctx context.Context, email, password string) (store.User, error) {
			if email == "a@x.com" && password == "Secret123" {
				return store.User{ID: 1, Email: email}, nil
			}
			return store.User{}, serr.ErrInvalidCredentials
		},
	}
	api := NewAPI(ids, &mockReconciler{}, anonymous())

	rec := testutil.SendRequest(t, api, "POST", "/v1/users/authenticate", authenticateRequest{Email: "a@x.com", Password: "Secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", testutil.ParseResponse[userResponse](t, rec).Email)

	wrong := testutil.SendRequest(t, api, "POST", "/v1/users/authenticate", authenticateRequest{Email: "a@x.com", Password: "nope"})
	missing := testutil.SendRequest(t, api, "POST", "/v1/users/authenticate", authenticateRequest{Email: "b@x.com", Password: "Secret123"})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.Equal(t, wrong.Body.String(), missing.Body.String())
}

func TestAPI_OAuth2Login(t *testing.T) {
	created := map[string]bool{}
	rec := &mockReconciler{
		loginOrRegisterFunc: func(ctx context.Context, ext service.ExternalIdentity) (store.User, bool, error) {
			isNew := !created[ext.Email]
			created[ext.Email] = true
			return store.User{ID: 5, Email: ext.Email, EmailVerified: true}, isNew, nil
		},
	}
	api := NewAPI(&mockIdentity{}, rec, anonymous())

	body := oauth2LoginRequest{Email: "fed@x.com", FirstName: "Fed", Password: "$2a$10$placeholder", EmailVerified: true}

	first := testutil.SendRequest(t, api, "POST", "/v1/users/oauth2-login", body)
	assert.Equal(t, http.StatusCreated, first.Code)

	second := testutil.SendRequest(t, api, "POST", "/v1/users/oauth2-login", body)
	assert.Equal(t, http.StatusOK, second.Code)

	resp := testutil.ParseResponse[userResponse](t, second)
	assert.Equal(t, int64(5), resp.ID)
	assert.True(t, resp.EmailVerified)
}

func TestAPI_Me(t *testing.T) {
	ids := &mockIdentity{
		findByEmailFunc: func(ctx context.Context, email string) (store.User, error) {
			return store.User{ID: 1, Email: email}, nil
		},
	}

	rec := testutil.SendRequest(t, NewAPI(ids, &mockReconciler{}, anonymous()), "GET", "/v1/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = testutil.SendRequest(t, NewAPI(ids, &mockReconciler{}, asUser("a@x.com")), "GET", "/v1/users/me", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", testutil.ParseResponse[userResponse](t, rec).Email)
}

func TestAPI_ByEmail(t *testing.T) {
	ids := &mockIdentity{
		findByEmailFunc: func(ctx context.Context, email string) (store.User, error) {
			if email != "a@x.com" {
				return store.User{}, serr.Wrap(serr.ErrUserNotFound, store.ErrNotFound, "user not found")
			}
			return store.User{Email: email, PasswordHash: "$2a$10$hash", Roles: []string{"ROLE_USER"}}, nil
		},
	}

	rec := testutil.SendRequest(t, NewAPI(ids, &mockReconciler{}, anonymous()), "GET", "/internal/auth/by-email/a@x.com", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	api := NewAPI(ids, &mockReconciler{}, asUser("service@x.com"))

	rec = testutil.SendRequest(t, api, "GET", "/internal/auth/by-email/a@x.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := testutil.ParseResponse[credentialResponse](t, rec)
	assert.Equal(t, "a@x.com", resp.Email)
	assert.Equal(t, "$2a$10$hash", resp.PasswordHash)
	assert.Equal(t, []string{"ROLE_USER"}, resp.Roles)

	rec = testutil.SendRequest(t, api, "GET", "/internal/auth/by-email/nobody@x.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user_not_found", testutil.ErrorCode(t, rec))
}

type mockReady struct {
	err error
}

func (m mockReady) Ready(ctx context.Context) error {
	return m.err
}

func TestHealth(t *testing.T) {
	rt := router.New()
	Health(rt, mockReady{})

	rec := testutil.SendRequest(t, rt, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = testutil.SendRequest(t, rt, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rt = router.New()
	Health(rt, mockReady{err: errors.New("db down")})
	rec = testutil.SendRequest(t, rt, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestNewAPI_RequiresAuthn(t *testing.T) {
	assert.Panics(t, func() {
		NewAPI(&mockIdentity{}, &mockReconciler{}, nil)
	})
}
