package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Keys provides the signing method and key material shared by every issuer and validator
type Keys interface {
	Method() jwt.SigningMethod
	SignKey() any
	VerifyKey() any
}

// Secret is a symmetric HMAC-SHA256 key
type Secret struct {
	secret []byte
}

func NewSecret(secret string) *Secret {
	return &Secret{
		secret: []byte(secret),
	}
}

func (s *Secret) Method() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

func (s *Secret) SignKey() any {
	return s.secret
}

func (s *Secret) VerifyKey() any {
	return s.secret
}

// RSAKeys signs with RS256. A nil private key gives a verify-only key set.
type RSAKeys struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

func NewRSAKeys(privatePEM, publicPEM []byte) (*RSAKeys, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	keys := &RSAKeys{public: pub}
	if len(privatePEM) == 0 {
		return keys, nil
	}

	keys.private, err = jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return keys, nil
}

func (k *RSAKeys) Method() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

func (k *RSAKeys) SignKey() any {
	if k.private == nil {
		return nil
	}
	return k.private
}

func (k *RSAKeys) VerifyKey() any {
	return k.public
}

// LoadKeys uses RSA keys when a public key file is configured and the shared secret otherwise.
// A validator that never issues tokens may omit the private key.
func LoadKeys(secret, privateKeyFile, publicKeyFile string) (Keys, error) {
	if publicKeyFile == "" {
		if secret == "" {
			return nil, errors.New("either a signing secret or a public key file is required")
		}
		return NewSecret(secret), nil
	}

	pub, err := os.ReadFile(publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	var priv []byte
	if privateKeyFile != "" {
		priv, err = os.ReadFile(privateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
	}

	return NewRSAKeys(priv, pub)
}
