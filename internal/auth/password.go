package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// PlaceholderHash returns a bcrypt hash that matches no password a user can
// send. Comparing against it costs the same as checking a real account.
var PlaceholderHash = sync.OnceValue(func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("\x00placeholder"), bcryptCost)
	if err != nil {
		return ""
	}
	return string(hash)
})

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash. Only a mismatch
// yields false with a nil error.
func CheckPassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
