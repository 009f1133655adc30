// Package util provides shared helper functions.
package util

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password with bcrypt. bcrypt salts automatically;
// the default cost (10) is used.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword reports whether a plaintext password matches a stored hash.
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateSessionID returns an opaque 32-character identifier for a tracking
// session: a UUID v4 with the hyphens stripped.
func GenerateSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// StringPtr returns a pointer to s. Useful for optional model fields.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}

// Int64Ptr returns a pointer to i.
func Int64Ptr(i int64) *int64 {
	return &i
}
