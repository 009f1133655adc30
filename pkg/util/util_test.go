package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPassword("correct horse battery staple", hash))
	assert.False(t, CheckPassword("wrong password", hash))
	assert.False(t, CheckPassword("correct horse battery staple", "not-a-hash"))
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")

	assert.NotEqual(t, id, GenerateSessionID())
}
