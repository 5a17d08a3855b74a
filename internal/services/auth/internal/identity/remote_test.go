package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T, h http.HandlerFunc) *Remote {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewRemote(base, time.Second)
}

func respond(status int, body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func TestRemote_Authenticate(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/users/authenticate", r.URL.Path)

		var c credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
		assert.Equal(t, "a@x.com", c.Email)
		assert.Equal(t, "Secret123", c.Password)

		respond(http.StatusOK, User{ID: 1, Email: "a@x.com", Roles: []string{"ROLE_USER"}})(w, r)
	})

	u, err := r.Authenticate(context.Background(), "a@x.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, []string{"ROLE_USER"}, u.Roles)
}

func TestRemote_Authenticate_Rejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound} {
		r := newRemote(t, respond(status, map[string]string{"error": "invalid_credentials", "message": "user a@x.com has no password"}))

		_, err := r.Authenticate(context.Background(), "a@x.com", "nope")
		assert.Equal(t, serr.ErrInvalidCredentials, err)
	}
}

func TestRemote_UpstreamFailures(t *testing.T) {
	tbl := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"server error", respond(http.StatusInternalServerError, map[string]string{"error": "boom"})},
		{"bad gateway", respond(http.StatusBadGateway, nil)},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("<html>"))
		}},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}},
	}

	for _, c := range tbl {
		t.Run(c.name, func(t *testing.T) {
			r := newRemote(t, c.h)
			r.client.Timeout = 100 * time.Millisecond

			_, err := r.Authenticate(context.Background(), "a@x.com", "Secret123")
			require.Error(t, err)
			assert.ErrorIs(t, err, serr.ErrUpstreamUnavailable)
			assert.NotErrorIs(t, err, serr.ErrInvalidCredentials)

			cl := serr.Classify(err)
			assert.Equal(t, http.StatusInternalServerError, cl.Status)
			assert.Equal(t, "internal server error", cl.Message)
		})
	}
}

func TestRemote_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	_, err = NewRemote(base, time.Second).Authenticate(context.Background(), "a@x.com", "Secret123")
	assert.ErrorIs(t, err, serr.ErrUpstreamUnavailable)
}

func TestRemote_SignUp(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/users/signup", r.URL.Path)

		var req SignUpRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Email {
		case "taken@x.com":
			respond(http.StatusConflict, nil)(w, r)
		case "bad":
			respond(http.StatusBadRequest, nil)(w, r)
		default:
			respond(http.StatusCreated, User{ID: 7, Email: req.Email, FirstName: req.FirstName})(w, r)
		}
	})

	u, err := r.SignUp(context.Background(), SignUpRequest{Email: "a@x.com", Password: "Secret123", FirstName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "Ann", u.FirstName)

	_, err = r.SignUp(context.Background(), SignUpRequest{Email: "taken@x.com", Password: "Secret123"})
	assert.ErrorIs(t, err, serr.ErrAlreadyExists)
	assert.Equal(t, http.StatusConflict, serr.Classify(err).Status)

	_, err = r.SignUp(context.Background(), SignUpRequest{Email: "bad", Password: "Secret123"})
	assert.ErrorIs(t, err, serr.ErrValidation)
}

func TestRemote_LoginOrRegister(t *testing.T) {
	seen := map[string]bool{}
	r := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/users/oauth2-login", r.URL.Path)

		var ext ExternalIdentity
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ext))
		assert.True(t, ext.EmailVerified)
		assert.Equal(t, "$2a$10$hash", ext.PasswordHash)

		status := http.StatusOK
		if !seen[ext.Email] {
			status = http.StatusCreated
		}
		seen[ext.Email] = true
		respond(status, User{ID: 3, Email: ext.Email, EmailVerified: true})(w, r)
	})

	ext := ExternalIdentity{Provider: "yandex", Email: "fed@x.com", PasswordHash: "$2a$10$hash", EmailVerified: true}

	u, created, err := r.LoginOrRegister(context.Background(), ext)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(3), u.ID)

	_, created, err = r.LoginOrRegister(context.Background(), ext)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRemote_Me(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/users/me", r.URL.Path)

		switch r.Header.Get("Authorization") {
		case "Bearer good":
			respond(http.StatusOK, User{Email: "a@x.com"})(w, r)
		case "Bearer admin-only":
			respond(http.StatusForbidden, nil)(w, r)
		default:
			respond(http.StatusUnauthorized, nil)(w, r)
		}
	})

	u, err := r.Me(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)

	_, err = r.Me(context.Background(), "expired")
	assert.ErrorIs(t, err, serr.ErrInvalidToken)

	_, err = r.Me(context.Background(), "admin-only")
	assert.Equal(t, http.StatusForbidden, serr.Classify(err).Status)
}

func TestRemote_Ready(t *testing.T) {
	r := newRemote(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, r.Ready(context.Background()))

	r = newRemote(t, respond(http.StatusServiceUnavailable, nil))
	assert.ErrorIs(t, r.Ready(context.Background()), serr.ErrUpstreamUnavailable)
}

func TestRemote_BasePath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL + "/users-api/")
	require.NoError(t, err)

	require.NoError(t, NewRemote(base, time.Second).Ready(context.Background()))
	assert.Equal(t, "/users-api/healthz", path)
}

func TestNewRemote_RequiresURL(t *testing.T) {
	assert.Panics(t, func() {
		NewRemote(nil, time.Second)
	})
}
