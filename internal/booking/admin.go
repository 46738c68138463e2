package booking

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// VerifyPassword checks password against a stored digest. bcrypt hashes and
// hex encoded SHA-256 digests are accepted. An empty digest matches nothing.
func VerifyPassword(digest, password string) bool {
	if digest == "" {
		return false
	}
	if strings.HasPrefix(digest, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}
	sum := sha256.Sum256([]byte(password))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(digest))) == 1
}
