package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPhone(t *testing.T) {
	valid := []string{"+447700900123", "447700900123", "07700900123", "+15551234567"}
	for _, p := range valid {
		assert.True(t, ValidPhone(p), "phone %q", p)
	}

	invalid := []string{"", "123", "+44 7700 900123", "notaphone", "+4477009001234567890"}
	for _, p := range invalid {
		assert.False(t, ValidPhone(p), "phone %q", p)
	}
}
