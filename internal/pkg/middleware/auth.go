package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rfsnab/auth/internal/pkg/httpx"
	"github.com/rfsnab/auth/internal/pkg/principal"
	"github.com/rfsnab/auth/internal/pkg/router"
)

// State is where a request ended up in the authentication pipeline
type State string

const (
	StateNoToken       State = "no_token"
	StateTokenPresent  State = "token_present"
	StateAuthenticated State = "authenticated"
	StateRejected      State = "rejected"
)

// Outcome is the result of one stage
type Outcome struct {
	State     State
	Principal principal.Principal
}

// Stage tries to establish a principal for r. Only StateAuthenticated attaches Principal.
type Stage func(r *http.Request) Outcome

type stateKey struct{}

// StateFromContext returns the pipeline state recorded for the request
func StateFromContext(ctx context.Context) State {
	s, ok := ctx.Value(stateKey{}).(State)
	if !ok {
		return StateNoToken
	}
	return s
}

// Authenticate runs stages in order until one authenticates the request.
// It never rejects a request itself: endpoints decide with RequireAuth or RequireRole.
// A request that already carries a principal passes through untouched.
func Authenticate(stages ...Stage) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := principal.FromContext(ctx); ok {
				next.ServeHTTP(w, r)
				return
			}

			state := StateNoToken
			for _, stage := range stages {
				out := stage(r)
				if out.State == StateAuthenticated {
					ctx, _ = principal.WithPrincipal(ctx, out.Principal)
					state = out.State
					break
				}
				if rank(out.State) > rank(state) {
					state = out.State
				}
			}

			ctx = context.WithValue(ctx, stateKey{}, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rank(s State) int {
	switch s {
	case StateTokenPresent:
		return 1
	case StateRejected:
		return 2
	case StateAuthenticated:
		return 3
	default:
		return 0
	}
}

// TokenValidator verifies signature and expiry in one parse and returns the subject
type TokenValidator interface {
	ExtractSubject(token string) (string, error)
}

type RoleResolver interface {
	RolesOf(ctx context.Context, email string) (principal.Roles, error)
}

// BearerAuth validates "Authorization: Bearer" tokens and resolves the subject's roles
type BearerAuth struct {
	tokens  TokenValidator
	roles   RoleResolver
	observe func(State)
}

func NewBearerAuth(tokens TokenValidator, roles RoleResolver) *BearerAuth {
	if tokens == nil {
		panic("token validator is required")
	}
	if roles == nil {
		panic("role resolver is required")
	}

	return &BearerAuth{
		tokens:  tokens,
		roles:   roles,
		observe: func(State) {},
	}
}

// WithObserver registers fn to be called with the final state of every evaluated request
func (b *BearerAuth) WithObserver(fn func(State)) *BearerAuth {
	b.observe = fn
	return b
}

func (b *BearerAuth) Stage() Stage {
	return func(r *http.Request) Outcome {
		out := b.Resolve(r)
		b.observe(out.State)
		return out
	}
}

// Resolve performs at most one validation and one role lookup
func (b *BearerAuth) Resolve(r *http.Request) Outcome {
	tok, ok := httpx.BearerToken(r)
	if !ok {
		return Outcome{State: StateNoToken}
	}

	subject, err := b.tokens.ExtractSubject(tok)
	if err != nil {
		slog.Debug("bearer token rejected", "error", err, "url", r.URL.Path, "remote_addr", r.RemoteAddr)
		return Outcome{State: StateRejected}
	}

	roles, err := b.roles.RolesOf(r.Context(), subject)
	if err != nil {
		slog.Error("role lookup failed, treating request as unauthenticated", "error", err, "subject", subject)
		return Outcome{State: StateRejected}
	}
	if len(roles) == 0 {
		slog.Info("token subject is not a known user", "subject", subject)
		return Outcome{State: StateRejected}
	}

	return Outcome{
		State:     StateAuthenticated,
		Principal: principal.Principal{Subject: subject, Roles: roles},
	}
}

// RequireAuth answers 401 unless an earlier stage attached a principal
func RequireAuth() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := principal.FromContext(r.Context()); !ok {
				unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole answers 401 without a principal and 403 when the principal lacks role
func RequireRole(role principal.Role) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !p.HasRole(role) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	if StateFromContext(r.Context()) == StateRejected {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return
	}
	httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}
