package clubauth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoEmptyString rejects empty password input
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is the error for a failed password comparison
var ErrMismatchedHashAndPassword = errors.New("mismatched password and hash")

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
