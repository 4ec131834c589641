package crypto

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordLength is the number of leading characters considered when a
// password is hashed or compared.
const MaxPasswordLength = 18

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(truncate(plain)), bcrypt.DefaultCost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(truncate(plain)))
}

// IsHash reports whether value already looks like a bcrypt hash.
func IsHash(value string) bool {
	if !strings.HasPrefix(value, "$2") {
		return false
	}
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}

func truncate(plain string) string {
	runes := []rune(plain)
	if len(runes) > MaxPasswordLength {
		return string(runes[:MaxPasswordLength])
	}
	return plain
}
