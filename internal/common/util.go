package common

import (
	"crypto/rand"
	"strings"
)

// GenerateRandByteArray returns size cryptographically random bytes.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return b
}

// WipeByteArray zeroes b in place. Use for secrets that should not
// outlive their scope.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// MaskEmail renders an email like "j***@example.com" for MFA channel hints
// when the server does not supply a masked value itself.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// MaskPhone keeps only the last four digits, e.g. "****1234".
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
