package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rfsnab/auth/internal/pkg/serr"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ReadJSON decodes the request body into out. An empty or malformed body is a validation error.
func ReadJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return serr.Wrap(serr.ErrValidation, err, "request body is empty")
		}
		return serr.Wrap(serr.ErrValidation, err, "malformed request body")
	}

	return nil
}

func WriteJSON(w http.ResponseWriter, status int, resp any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	return enc.Encode(resp)
}

// HandleErr classifies err, logs it once and writes the client-facing error body
func HandleErr(w http.ResponseWriter, r *http.Request, err error) {
	c := serr.Classify(err)

	attrs := []any{
		"error", err,
		"code", c.Code,
		"status", c.Status,
		"method", r.Method,
		"url", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	}

	var se *serr.ServiceError
	if errors.As(err, &se) {
		for k, v := range se.Env {
			attrs = append(attrs, k, v)
		}
		if c.Status >= http.StatusInternalServerError {
			attrs = append(attrs, "stack_trace", se.StackTrace)
		}
	}

	if c.Status >= http.StatusInternalServerError {
		slog.Error("request error", attrs...)
	} else {
		slog.Warn("request error", attrs...)
	}

	WriteError(w, c.Status, c.Code, c.Message)
}

// WriteError writes the error body without logging
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}

	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}

	return tok, true
}

// PathValue returns a non-empty path wildcard or a validation error
func PathValue(r *http.Request, name string) (string, error) {
	v := r.PathValue(name)
	if v == "" {
		return "", serr.Wrap(serr.ErrValidation, nil, "missing %s", name)
	}
	return v, nil
}
