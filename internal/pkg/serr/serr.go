package serr

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("expired token")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrValidation          = errors.New("validation error")
)

// ServiceError carries a client-facing status and message next to the underlying cause
type ServiceError struct {
	Err        error
	Kind       error
	Msg        string
	StackTrace string
	StatusCode int
	Env        map[string]string
}

func NewServiceError(err error, statusCode int, msg string, args ...any) *ServiceError {
	return &ServiceError{
		Err:        err,
		Msg:        fmt.Sprintf(msg, args...),
		StatusCode: statusCode,
		StackTrace: string(debug.Stack()),
		Env:        make(map[string]string),
	}
}

// Wrap builds a ServiceError of the given kind; status and code are derived from the kind
func Wrap(kind error, err error, msg string, args ...any) *ServiceError {
	status, _, _ := classifyKind(kind)
	se := NewServiceError(err, status, msg, args...)
	se.Kind = kind
	return se
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classification is what a client gets to see about an error
type Classification struct {
	Status  int
	Code    string
	Message string
}

// Classify maps any error to a client-facing status, code and message. Unknown errors are reported as a generic 500.
func Classify(err error) Classification {
	var se *ServiceError
	if errors.As(err, &se) {
		status, code, msg := classifyKind(se.Kind)
		if se.StatusCode != 0 {
			status = se.StatusCode
		}
		if se.Kind == nil {
			code = codeForStatus(status)
		}
		if se.Msg != "" && status < http.StatusInternalServerError {
			msg = se.Msg
		}
		return Classification{Status: status, Code: code, Message: msg}
	}

	for _, kind := range kinds {
		if errors.Is(err, kind) {
			status, code, msg := classifyKind(kind)
			return Classification{Status: status, Code: code, Message: msg}
		}
	}

	status, code, msg := classifyKind(nil)
	return Classification{Status: status, Code: code, Message: msg}
}

// expired goes before invalid: an expired token error also matches ErrInvalidToken
var kinds = []error{
	ErrInvalidCredentials,
	ErrExpiredToken,
	ErrInvalidToken,
	ErrAlreadyExists,
	ErrUserNotFound,
	ErrValidation,
	ErrUpstreamUnavailable,
}

func classifyKind(kind error) (int, string, string) {
	switch kind {
	case ErrInvalidCredentials:
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case ErrInvalidToken:
		return http.StatusUnauthorized, "invalid_token", "invalid token"
	case ErrExpiredToken:
		return http.StatusUnauthorized, "expired_token", "token has expired"
	case ErrAlreadyExists:
		return http.StatusConflict, "already_exists", "user already exists"
	case ErrUserNotFound:
		return http.StatusNotFound, "user_not_found", "user not found"
	case ErrValidation:
		return http.StatusBadRequest, "validation_error", "invalid request"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}
