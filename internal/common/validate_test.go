package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("user@example.com"))
	assert.True(t, ValidEmail("a@b.co"))
	assert.False(t, ValidEmail("user@example"))
	assert.False(t, ValidEmail("user example.com"))
	assert.False(t, ValidEmail(""))
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+15551234567"))
	assert.True(t, ValidPhone("15551234567"))
	assert.False(t, ValidPhone("+0123"))
	assert.False(t, ValidPhone("555-123-4567"))
	assert.False(t, ValidPhone(""))
}

func TestValidIdentifier(t *testing.T) {
	assert.True(t, ValidIdentifier("user@example.com"))
	assert.True(t, ValidIdentifier("+15551234567"))
	assert.False(t, ValidIdentifier("not an identifier"))
}

func TestValidOTP(t *testing.T) {
	assert.True(t, ValidOTP("123456"))
	assert.False(t, ValidOTP("12345"))
	assert.False(t, ValidOTP("1234567"))
	assert.False(t, ValidOTP("12345a"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("john@example.com"))
	assert.Equal(t, "***", MaskEmail("nonsense"))
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "****4567", MaskPhone("+15551234567"))
	assert.Equal(t, "****", MaskPhone("123"))
}
