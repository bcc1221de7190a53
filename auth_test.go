package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionLifecycle verifies create, validate, and delete of a bearer
// session.
func TestSessionLifecycle(t *testing.T) {
	am := NewAuthManager(nil, 24*time.Hour)

	session, err := am.CreateSession(&User{ID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "alice", session.Username)

	got, err := am.ValidateSession(session.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UserID)

	am.DeleteSession(session.Token)
	_, err = am.ValidateSession(session.Token)
	assert.Error(t, err)
}

// TestSessionExpiry verifies that an expired session is rejected and
// evicted.
func TestSessionExpiry(t *testing.T) {
	am := NewAuthManager(nil, -time.Minute)

	session, err := am.CreateSession(&User{ID: 1, Username: "alice"})
	require.NoError(t, err)

	_, err = am.ValidateSession(session.Token)
	assert.Error(t, err)
}

// TestValidateUnknownToken verifies that a token never issued is invalid.
func TestValidateUnknownToken(t *testing.T) {
	am := NewAuthManager(nil, 24*time.Hour)

	_, err := am.ValidateSession("deadbeef")
	assert.Error(t, err)
}

// TestExtractToken verifies both token transports: the Authorization
// header and the query parameter used by the websocket handshake.
func TestExtractToken(t *testing.T) {
	am := NewAuthManager(nil, 24*time.Hour)

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.Empty(t, am.ExtractToken(r))

	r = httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", am.ExtractToken(r))

	r = httptest.NewRequest("GET", "/ws?token=xyz789", nil)
	assert.Equal(t, "xyz789", am.ExtractToken(r))
}

// TestSessionTokensUnique verifies tokens do not collide across sessions.
func TestSessionTokensUnique(t *testing.T) {
	am := NewAuthManager(nil, 24*time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		session, err := am.CreateSession(&User{ID: i, Username: "u"})
		require.NoError(t, err)
		assert.False(t, seen[session.Token])
		seen[session.Token] = true
	}
}
