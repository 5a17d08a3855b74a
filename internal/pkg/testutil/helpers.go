package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func SendRequest(t testing.TB, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return SendAuthorized(t, h, method, path, "", body)
}

// SendAuthorized sends body as JSON with an "Authorization: Bearer" header when token is not empty
func SendAuthorized(t testing.TB, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var bodyRW strings.Builder
	if body != nil {
		enc := json.NewEncoder(&bodyRW)
		err := enc.Encode(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(method, path, strings.NewReader(bodyRW.String()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

// ParseResponse decodes the recorded body without consuming it
func ParseResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	dec := json.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	var resp T
	err := dec.Decode(&resp)
	require.NoError(t, err)

	return resp
}

// ErrorCode decodes an error body and returns its code
func ErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	resp := ParseResponse[struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}](t, rec)
	return resp.Error
}

func WaitFor(t testing.TB, ctx context.Context, interval time.Duration, condition func() bool) bool {
	t.Helper()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if condition() {
				return true
			}
		}
	}
}
