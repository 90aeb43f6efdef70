package common

import "regexp"

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	otpRe   = regexp.MustCompile(`^\d{6}$`)
)

// ValidEmail reports whether s looks like an email address. This gates
// submission only; the server performs authoritative validation.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// ValidPhone reports whether s looks like an E.164 phone number
// (country code required, e.g. +15551234567).
func ValidPhone(s string) bool {
	return phoneRe.MatchString(s)
}

// ValidIdentifier accepts either an email address or a phone number.
func ValidIdentifier(s string) bool {
	return ValidEmail(s) || ValidPhone(s)
}

// ValidOTP reports whether s is a 6-digit verification code.
func ValidOTP(s string) bool {
	return otpRe.MatchString(s)
}
