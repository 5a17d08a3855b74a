package provider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rfsnab/auth/internal/services/auth/internal/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://accounts.test"
	testClientID = "client-id"
)

// googleServer fakes the token endpoint; each exchange returns an id token built from claims
func googleServer(t *testing.T, claims jwt.MapClaims) *Google {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	base := jwt.MapClaims{
		"iss": testIssuer,
		"aud": testClientID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	for k, v := range claims {
		base[k] = v
	}

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, base).SignedString(key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "google-at",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(srv.Close)

	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return &Google{
		cfg: &oauth2.Config{
			ClientID:     testClientID,
			ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   srv.URL + "/auth",
				TokenURL:  srv.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{oidc.ScopeOpenID, googleScopeProfile, googleScopeEmail},
		},
		verifier: oidc.NewVerifier(testIssuer, keys, &oidc.Config{ClientID: testClientID}),
	}
}

func TestGoogle_LoginURL(t *testing.T) {
	g := googleServer(t, nil)

	raw, err := g.LoginURL("the-state", "the-nonce")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "the-state", u.Query().Get("state"))
	assert.Equal(t, "the-nonce", u.Query().Get("nonce"))
	assert.Contains(t, u.Query().Get("scope"), "openid")
}

func TestGoogle_Exchange(t *testing.T) {
	g := googleServer(t, jwt.MapClaims{
		"sub":            "g-1",
		"nonce":          "n-1",
		"email":          "fed@gmail.com",
		"email_verified": true,
		"given_name":     "Fed",
		"family_name":    "Erated",
	})

	usr, err := g.Exchange(context.Background(), "code", "n-1")
	require.NoError(t, err)
	assert.Equal(t, oauth.User{
		ID:            "g-1",
		Email:         "fed@gmail.com",
		EmailVerified: true,
		FirstName:     "Fed",
		LastName:      "Erated",
	}, usr)
}

func TestGoogle_Exchange_NameFallbacks(t *testing.T) {
	g := googleServer(t, jwt.MapClaims{
		"sub":            "g-1",
		"nonce":          "n-1",
		"email":          "fed@gmail.com",
		"email_verified": true,
		"name":           "Fed Erated",
	})

	usr, err := g.Exchange(context.Background(), "code", "n-1")
	require.NoError(t, err)
	assert.Equal(t, "Fed Erated", usr.FirstName)
	assert.Equal(t, "User", usr.LastName)
}

func TestGoogle_Exchange_UnverifiedEmail(t *testing.T) {
	g := googleServer(t, jwt.MapClaims{
		"sub":            "g-1",
		"nonce":          "n-1",
		"email":          "fed@gmail.com",
		"email_verified": false,
	})

	_, err := g.Exchange(context.Background(), "code", "n-1")
	assert.ErrorIs(t, err, oauth.ErrAuthFailed)
}

func TestGoogle_Exchange_NonceMismatch(t *testing.T) {
	g := googleServer(t, jwt.MapClaims{
		"sub":            "g-1",
		"nonce":          "n-1",
		"email":          "fed@gmail.com",
		"email_verified": true,
	})

	_, err := g.Exchange(context.Background(), "code", "other")
	assert.ErrorIs(t, err, oauth.ErrAuthFailed)
}

func TestGoogle_Exchange_WrongAudience(t *testing.T) {
	g := googleServer(t, jwt.MapClaims{
		"aud":            "someone-else",
		"sub":            "g-1",
		"nonce":          "n-1",
		"email":          "fed@gmail.com",
		"email_verified": true,
	})

	_, err := g.Exchange(context.Background(), "code", "n-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, oauth.ErrAuthFailed)
}
