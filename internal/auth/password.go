package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password HashPassword accepts.
const MinPasswordLength = 8

var ErrWeakPassword = errors.New("auth: password is too short")

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var compareHash = bcrypt.CompareHashAndPassword

// decoyHash is compared against when there is no real hash, so a failed
// lookup costs the same as a wrong password.
var decoyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("warden-decoy-password"), bcrypt.DefaultCost)
	if err != nil {
		panic("auth: generate decoy hash: " + err.Error())
	}
	return hash
})

// VerifyPassword compares plaintext password with stored hash. An empty
// hash never matches, so accounts without a password cannot log in.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		burnPasswordCheck(password)
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return compareHash([]byte(hash), []byte(password))
}

// burnPasswordCheck spends one bcrypt comparison and discards the result.
func burnPasswordCheck(password string) {
	_ = compareHash(decoyHash(), []byte(password))
}
