package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rfsnab/auth/internal/pkg/httpx"
	"github.com/rfsnab/auth/internal/pkg/router"
	"github.com/rfsnab/auth/internal/pkg/serr"
	"github.com/rfsnab/auth/internal/pkg/token"
	"github.com/rfsnab/auth/internal/services/auth/internal/identity"
	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"github.com/rfsnab/auth/internal/services/auth/internal/service"
)

type gateway interface {
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (token.Pair, error)
	Logout(ctx context.Context) error
	Register(ctx context.Context, r identity.SignUpRequest) (identity.User, error)
	Me(ctx context.Context, accessToken string) (identity.User, error)
	LoginURL(env oauth.Env, r service.LoginRequest) (string, error)
	AuthCallback(ctx context.Context, env oauth.Env, r service.AuthCallbackRequest) (service.AuthCallbackResponse, error)
	RedeemCode(ctx context.Context, code string) (token.Pair, error)
}

type API struct {
	gw     gateway
	rt     *router.Router
	secure bool
}

func NewAPI(gw gateway) *API {
	api := &API{
		gw:     gw,
		rt:     router.New(),
		secure: true,
	}
	api.mount()
	return api
}

// InsecureCookies lets the OAuth state cookies travel over plain HTTP
func (a *API) InsecureCookies() *API {
	a.secure = false
	return a
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.rt.ServeHTTP(w, r)
}

func (a *API) mount() {
	auth := a.rt.SubRouter("/v1/auth")
	auth.HandleFunc("POST /login", a.handleLogin)
	auth.HandleFunc("POST /refresh", a.handleRefresh)
	auth.HandleFunc("POST /logout", a.handleLogout)
	auth.HandleFunc("POST /register", a.handleRegister)
	auth.HandleFunc("GET /me", a.handleMe)
	auth.HandleFunc("POST /redeem", a.handleRedeem)
	auth.HandleFunc("GET /{provider}/login", a.handleProviderLogin)
	auth.HandleFunc("GET /{provider}/callback", a.handleCallback)
}

func (a *API) env(provider string, w http.ResponseWriter, r *http.Request) oauth.Env {
	env := oauth.NewHTTPEnv(provider, w, r)
	if !a.secure {
		env = env.Insecure()
	}
	return env
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         identity.User `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	res, err := a.gw.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, loginResponse{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(res.Tokens.ExpiresIn.Seconds()),
		User:         res.User,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
}

func toTokenResponse(p token.Pair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(p.ExpiresIn.Seconds()),
	}
}

// handleRefresh takes the token from the refreshToken query parameter, falling back to the JSON body
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rt := r.URL.Query().Get("refreshToken")
	if rt == "" {
		var req refreshRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
			return
		}
		rt = req.RefreshToken
	}

	p, err := a.gw.Refresh(r.Context(), rt)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toTokenResponse(p))
}

type messageResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.gw.Logout(r.Context()); err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, messageResponse{Message: "Logout successful", Status: "success"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req identity.SignUpRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	u, err := a.gw.Register(r.Context(), req)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, u)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	tok, _ := httpx.BearerToken(r)

	u, err := a.gw.Me(r.Context(), tok)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, u)
}

type redeemRequest struct {
	Code string `json:"code"`
}

func (a *API) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("read request json: %w", err))
		return
	}

	p, err := a.gw.RedeemCode(r.Context(), req.Code)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, toTokenResponse(p))
}

func (a *API) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.PathValue(r, "provider")
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	url, err := a.gw.LoginURL(a.env(p, w, r), service.LoginRequest{
		Provider:    p,
		RedirectURL: r.URL.Query().Get("redirect_url"),
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	p, err := httpx.PathValue(r, "provider")
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		sErr := serr.NewServiceError(nil, http.StatusUnauthorized, "authentication failed")
		sErr.Env["provider"] = p
		sErr.Env["provider_error"] = e
		httpx.HandleErr(w, r, sErr)
		return
	}

	resp, err := a.gw.AuthCallback(r.Context(), a.env(p, w, r), service.AuthCallbackRequest{
		Provider: p,
		Code:     q.Get("code"),
		State:    q.Get("state"),
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	http.Redirect(w, r, resp.RedirectURL, http.StatusFound)
}

type readiness interface {
	Ready(ctx context.Context) error
}

// Health serves liveness and readiness checks. The service is ready when every check passes.
func Health(rt *router.Router, checks ...readiness) {
	rt.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rt.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		for _, c := range checks {
			if err := c.Ready(r.Context()); err != nil {
				httpx.HandleErr(w, r, serr.NewServiceError(err, http.StatusServiceUnavailable, "not ready"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, resp any) {
	if err := httpx.WriteJSON(w, status, resp); err != nil {
		httpx.HandleErr(w, r, fmt.Errorf("write response json: %w", err))
	}
}
