package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonID_ParseRoundTrip(t *testing.T) {
	original := NewPersonID()
	parsed, err := ParsePersonID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParsePersonID_RejectsGarbage(t *testing.T) {
	_, err := ParsePersonID("not-a-uuid")
	assert.Error(t, err)
	_, err = ParsePersonID("")
	assert.Error(t, err)
}

func TestInstitutionID_ParseRoundTrip(t *testing.T) {
	original := NewInstitutionID()
	parsed, err := ParseInstitutionID(original.String())
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestIsNil(t *testing.T) {
	assert.True(t, PersonID{}.IsNil())
	assert.True(t, InstitutionID{}.IsNil())
	assert.False(t, NewPersonID().IsNil())
	assert.False(t, NewInstitutionID().IsNil())
}
