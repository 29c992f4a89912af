package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// SecretsEqual compares two shared secrets in constant time
func SecretsEqual(given, expected string) bool {
	a := sha256.Sum256([]byte(given))
	b := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
