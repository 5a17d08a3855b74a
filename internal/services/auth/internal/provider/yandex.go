package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const yandexUserInfoURL = "https://login.yandex.ru/info?format=json"

// Yandex implements the identityProvider interface for Yandex ID. It is a plain OAuth2 provider:
// the profile comes from the userinfo endpoint and there is no id token or nonce.
type Yandex struct {
	cfg     *oauth2.Config
	infoURL string
}

type YandexConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type yandexInfo struct {
	ID           string `json:"id"`
	DefaultEmail string `json:"default_email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

func NewYandex(yandex YandexConfig) *Yandex {
	return &Yandex{
		cfg: &oauth2.Config{
			ClientID:     yandex.ClientID,
			ClientSecret: yandex.ClientSecret,
			RedirectURL:  yandex.RedirectURL,
			Scopes:       []string{"login:email", "login:info"},
			Endpoint:     endpoints.Yandex,
		},
		infoURL: yandexUserInfoURL,
	}
}

func (y *Yandex) LoginURL(state, nonce string) (string, error) {
	return y.cfg.AuthCodeURL(state), nil
}

// Exchange redeems the code and reads the profile. Yandex only hands out confirmed addresses,
// so the email is treated as verified.
func (y *Yandex) Exchange(ctx context.Context, code, nonce string) (oauth.User, error) {
	tok, err := y.cfg.Exchange(ctx, code)
	if err != nil {
		return oauth.User{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.infoURL, nil)
	if err != nil {
		return oauth.User{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+tok.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return oauth.User{}, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return oauth.User{}, fmt.Errorf("%w: user info rejected the access token", oauth.ErrAuthFailed)
	}
	if resp.StatusCode != http.StatusOK {
		return oauth.User{}, fmt.Errorf("unexpected user info status code: %d", resp.StatusCode)
	}

	var info yandexInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return oauth.User{}, fmt.Errorf("decode user info: %w", err)
	}

	if info.DefaultEmail == "" {
		return oauth.User{}, fmt.Errorf("%w: yandex returned no email", oauth.ErrAuthFailed)
	}

	return oauth.User{
		ID:            info.ID,
		Email:         info.DefaultEmail,
		EmailVerified: true,
		FirstName:     nameOrDefault(info.FirstName, defaultFirstName),
		LastName:      nameOrDefault(info.LastName, defaultLastName),
	}, nil
}
