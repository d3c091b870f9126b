package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// DigestLength is the length of a hex encoded digest.
const DigestLength = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 of b.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Hash normalizes f, canonicalizes it with scheme s and digests the result.
// An error is only possible for an unknown scheme.
func Hash(s Scheme, f Fields) (string, error) {
	payload, err := s.Canonicalize(Normalize(f))
	if err != nil {
		return "", err
	}
	return Digest(payload), nil
}

// Matches recomputes the digest of f under scheme s and compares it with
// stored. An empty stored hash never matches.
func Matches(s Scheme, f Fields, stored string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	got, err := Hash(s, f)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1, nil
}
