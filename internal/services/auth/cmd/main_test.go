package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rfsnab/auth/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "localhost:18080"

// usersStub answers the users service calls made during these tests
func usersStub(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/v1/users/authenticate":
			var req struct {
				Email    string `json:"email"`
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Password != "Secret123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": req.Email, "roles": []string{"ROLE_USER"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	mr := miniredis.RunT(t)
	users := usersStub(t)

	t.Setenv("HTTP_LISTEN_ADDR", addr)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("USER_SERVICE_URL", users.URL)
	t.Setenv("REDIS_HOST", mr.Host())
	t.Setenv("REDIS_PORT", mr.Port())
	t.Setenv("OAUTH_SECURE_COOKIES", "false")
	t.Setenv("LOG_LEVEL", "error")
	return mr
}

func get(path string) (int, bool) {
	resp, err := http.Get("http://" + addr + path)
	if err != nil {
		return 0, false
	}

	_ = resp.Body.Close()
	return resp.StatusCode, true
}

func post(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post("http://"+addr+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRun(t *testing.T) {
	mr := setEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	healthCh := make(chan bool, 1)
	readyCh := make(chan bool, 1)
	go func() {
		errCh <- run(ctx)
	}()

	go func() {
		healthCh <- testutil.WaitFor(t, ctx, 100*time.Millisecond, func() bool {
			status, ok := get("/healthz")
			return ok && status == http.StatusOK
		})
	}()

	go func() {
		readyCh <- testutil.WaitFor(t, ctx, 100*time.Millisecond, func() bool {
			status, ok := get("/readyz")
			return ok && status == http.StatusOK
		})
	}()

	var isHealthy, isReady bool
	for !isHealthy || !isReady {
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case isHealthy = <-healthCh:
			require.True(t, isHealthy)
		case isReady = <-readyCh:
			require.True(t, isReady)
		case <-ctx.Done():
			t.Fatal("test timed out")
		}
	}

	resp := post(t, "/v1/auth/login", `{"email":"a@x.com","password":"Secret123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, "Bearer", login.TokenType)

	resp = post(t, "/v1/auth/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, "/v1/auth/refresh?refreshToken="+login.RefreshToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, _ := get("/v1/auth/google/login")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = get("/metrics")
	assert.Equal(t, http.StatusOK, status)

	mr.SetError("ERR server unavailable")
	status, _ = get("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRun_Cancel(t *testing.T) {
	setEnv(t)

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()

	time.Sleep(500 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRun_MissingKeys(t *testing.T) {
	setEnv(t)
	t.Setenv("JWT_SECRET", "")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt keys")
}

func TestRun_BadRedirectOrigin(t *testing.T) {
	setEnv(t)
	t.Setenv("OAUTH_REDIRECT_ORIGINS", "app.example.com")

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirect origin")
}
