package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("s3cret", 7, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestParseTokenRejects(t *testing.T) {
	token, err := GenerateToken("s3cret", 7, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("other", token)
	assert.Error(t, err)

	expired, err := GenerateToken("s3cret", 7, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.Error(t, err)

	_, err = GenerateToken("", 7, time.Hour)
	assert.Error(t, err)
}
