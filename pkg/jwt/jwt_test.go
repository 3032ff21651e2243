package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager("secret", "loanportal", time.Minute, time.Hour)

	token, err := m.GenerateAccessToken(Identity{UserID: "01hx", Role: "admin", Email: "a@x.com"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "01hx", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestManager_RefreshTokenCarriesJTI(t *testing.T) {
	m := NewManager("secret", "loanportal", time.Minute, time.Hour)

	token, claims, err := m.GenerateRefreshToken(Identity{UserID: "u1", Role: "user"})
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)

	parsed, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, claims.ID, parsed.ID)
}

func TestManager_RejectsForeignIssuerAndKey(t *testing.T) {
	m := NewManager("secret", "loanportal", time.Minute, time.Hour)
	token, err := m.GenerateAccessToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	_, err = NewManager("secret", "someone-else", time.Minute, time.Hour).Validate(token)
	assert.Error(t, err)

	_, err = NewManager("other-secret", "loanportal", time.Minute, time.Hour).Validate(token)
	assert.Error(t, err)
}

func TestManager_RejectsExpired(t *testing.T) {
	m := NewManager("secret", "loanportal", time.Minute, time.Hour)
	issued := time.Now().Add(-2 * time.Minute)
	m.now = func() time.Time { return issued }
	token, err := m.GenerateAccessToken(Identity{UserID: "u1"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(token)
	assert.Error(t, err)
}
