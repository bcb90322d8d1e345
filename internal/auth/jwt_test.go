package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey      = "test-signing-key"
	testIssuer   = "edusync"
	testAudience = "edusync-clients"
)

func TestIssueAndParse(t *testing.T) {
	token, err := Issue("user-1", "Alice", "alice@example.com", "Student", testIssuer, testAudience, testKey, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token.Value)

	claims, err := Parse(token.Value, testKey, testIssuer, testAudience)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Student", claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	token, err := Issue("user-1", "Alice", "alice@example.com", "Student", testIssuer, testAudience, testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token.Value, "other-key", testIssuer, testAudience)
	assert.Error(t, err)
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	token, err := Issue("user-1", "Alice", "alice@example.com", "Student", "someone-else", testAudience, testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token.Value, testKey, testIssuer, testAudience)
	assert.Error(t, err)
}

func TestParseRejectsWrongAudience(t *testing.T) {
	token, err := Issue("user-1", "Alice", "alice@example.com", "Student", testIssuer, "other-app", testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token.Value, testKey, testIssuer, testAudience)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := Issue("user-1", "Alice", "alice@example.com", "Student", testIssuer, testAudience, testKey, -time.Minute)
	require.NoError(t, err)

	_, err = Parse(token.Value, testKey, testIssuer, testAudience)
	assert.Error(t, err)
}
