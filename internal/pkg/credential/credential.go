package credential

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/rfsnab/auth/internal/pkg/serr"
	"golang.org/x/crypto/bcrypt"
)

const (
	placeholderAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*"
	placeholderLength   = 16
)

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// Hash returns a salted bcrypt hash of the plaintext password
func Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", serr.ErrValidation)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(h), nil
}

// Compare reports whether plaintext matches hash. bcrypt compares in constant time.
func Compare(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// CompareDummy burns the same amount of work as Compare against a real hash.
// Used when there is no stored hash so that lookups of unknown emails take as long as known ones.
func CompareDummy(plaintext string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(plaintext))
}

// IsHash reports whether s looks like a bcrypt hash
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// Placeholder generates a random write-only password for accounts created through federated login
func Placeholder() (string, error) {
	limit := big.NewInt(int64(len(placeholderAlphabet)))
	b := make([]byte, placeholderLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = placeholderAlphabet[n.Int64()]
	}

	return string(b), nil
}
