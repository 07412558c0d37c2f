package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane.doe@example.edu", Normalize("  Jane.Doe@Example.EDU "))
	assert.Equal(t, "", Normalize("   "))
}

func TestDeriveNameFromEmail(t *testing.T) {
	tests := []struct {
		email string
		first string
		last  string
	}{
		{"jane.doe@example.edu", "Jane", "Doe"},
		{"sam_miller-jr@example.edu", "Sam", "Jr"},
		{"solo@example.edu", "Solo", "User"},
		{"@example.edu", "User", "User"},
	}
	for _, tc := range tests {
		first, last := DeriveNameFromEmail(tc.email)
		assert.Equal(t, tc.first, first, tc.email)
		assert.Equal(t, tc.last, last, tc.email)
	}
}
