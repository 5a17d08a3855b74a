package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rfsnab/auth/internal/pkg/httpx"
	"github.com/rfsnab/auth/internal/pkg/middleware"
	"github.com/rfsnab/auth/internal/pkg/principal"
	"github.com/rfsnab/auth/internal/pkg/router"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/services/users/internal/service"
	"github.com/rfsnab/auth/internal/services/users/internal/store"
)

type identityService interface {
	SignUp(ctx context.Context, r service.SignUpRequest) (store.User, error)
	VerifyCredentials(ctx context.Context, email, password string) (store.User, error)
	FindByEmail(ctx context.Context, email string) (store.User, error)
}

type reconciler interface {
	LoginOrRegister(ctx context.Context, ext service.ExternalIdentity) (store.User, bool, error)
}

type API struct {
	ids   identityService
	rec   reconciler
	authn router.Middleware
	rt    *router.Router
}

// NewAPI mounts the user endpoints. authn establishes the request principal, if any.
func NewAPI(ids identityService, rec reconciler, authn router.Middleware) *API {
	if authn == nil {
		panic("authentication middleware is required")
	}

	api := &API{
		ids:   ids,
		rec:   rec,
		authn: authn,
		rt:    router.New(),
	}
	api.mount()
	return api
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.rt.ServeHTTP(w, r)
}

func (a *API) mount() {
	a.rt.Use(a.authn)

	users := a.rt.SubRouter("/v1/users")
	users.HandleFunc("POST /signup", a.handleSignUp)
	users.HandleFunc("POST /authenticate", a.handleAuthenticate)
	users.HandleFunc("POST /oauth2-login", a.handleOAuth2Login)
	users.With(middleware.RequireAuth()).HandleFunc("GET /me", a.handleMe)

	internal := a.rt.SubRouter("/internal/auth")
	internal.With(middleware.RequireAuth()).HandleFunc("GET /by-email/{email}", a.handleByEmail)
}

type userResponse struct {
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

func toUserResponse(u store.User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	return userResponse{
		ID:            u.ID,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Surname:       u.Surname,
		EmailVerified: u.EmailVerified,
		Roles:         roles,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Surname   string `json:"surname"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	u, err := a.ids.SignUp(r.Context(), service.SignUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Profile: service.Profile{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Surname:   req.Surname,
		},
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, toUserResponse(u))
}

type authenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	u, err := a.ids.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toUserResponse(u))
}

type oauth2LoginRequest struct {
	Provider      string `json:"provider"`
	ProviderID    string `json:"providerId"`
	Email         string `json:"email"`
	FirstName     string `json:"firstname"`
	LastName      string `json:"lastname"`
	Password      string `json:"password"`
	EmailVerified bool   `json:"emailVerified"`
}

func (a *API) handleOAuth2Login(w http.ResponseWriter, r *http.Request) {
	var req oauth2LoginRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	u, created, err := a.rec.LoginOrRegister(r.Context(), service.ExternalIdentity{
		Provider:       req.Provider,
		ProviderUserID: req.ProviderID,
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		PasswordHash:   req.Password,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	writeJSON(w, r, status, toUserResponse(u))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := principal.FromContext(r.Context())

	u, err := a.ids.FindByEmail(r.Context(), p.Subject)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toUserResponse(u))
}

type credentialResponse struct {
	Email        string   `json:"email"`
	PasswordHash string   `json:"passwordHash"`
	Roles        []string `json:"roles"`
}

func (a *API) handleByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := httpx.PathValue(r, "email")
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	u, err := a.ids.FindByEmail(r.Context(), email)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}

	writeJSON(w, r, http.StatusOK, credentialResponse{
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        roles,
	})
}

type readiness interface {
	Ready(ctx context.Context) error
}

// Health serves liveness and readiness checks
func Health(rt *router.Router, ready readiness) {
	rt.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rt.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := ready.Ready(r.Context()); err != nil {
			httpx.HandleErr(w, r, serr.NewServiceError(err, http.StatusServiceUnavailable, "not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp any) {
	if err := httpx.WriteJSON(w, status, resp); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
	}
}
