package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Verify reports whether signature is the GitHub X-Hub-Signature-256 value
// for body under secret. A missing or unprefixed header, an empty secret or
// a digest mismatch all yield false.
func Verify(secret string, body []byte, signature string) bool {
	if secret == "" || !HasSignature(signature) {
		return false
	}
	presented := signature[len(signaturePrefix):]

	return constantTimeEqual([]byte(presented), []byte(Sign(secret, body)))
}

// HasSignature reports whether the header value is shaped like a sha256
// signature. It says nothing about whether the digest is correct.
func HasSignature(signature string) bool {
	return strings.HasPrefix(signature, signaturePrefix) && len(signature) > len(signaturePrefix)
}

// Sign returns the lowercase hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEqual compares two equal-length inputs without an early exit.
// Lengths are public (the digest is always 64 hex chars), so a length
// mismatch is rejected up front.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
