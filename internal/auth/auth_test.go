package auth

import (
	"context"
	"testing"
	"time"

	"skinscope/internal/common"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordAndCheck(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))

	other, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "hashes must be salted")
}

func TestBurnPasswordCheck(t *testing.T) {
	assert.False(t, BurnPasswordCheck("skinscope-dummy-password"))
	assert.False(t, BurnPasswordCheck(""))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.Com "))
}

func TestSessions_IssueAndParse(t *testing.T) {
	s := NewSessions([]byte("secret"), time.Hour)

	token, err := s.Issue(Identity{UserID: 42, Name: "Alice", Email: "a@x.com"})
	require.NoError(t, err)

	id, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 42, Name: "Alice", Email: "a@x.com"}, id)
}

func TestSessions_Parse_Rejects(t *testing.T) {
	s := NewSessions([]byte("secret"), time.Hour)
	good, err := s.Issue(Identity{UserID: 1})
	require.NoError(t, err)

	expired, err := NewSessions([]byte("secret"), -time.Minute).Issue(Identity{UserID: 1})
	require.NoError(t, err)

	foreign, err := NewSessions([]byte("other"), time.Hour).Issue(Identity{UserID: 1})
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"tampered", good + "x"},
		{"expired", expired},
		{"wrong secret", foreign},
		{"no subject", noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Parse(tt.token)
			assert.ErrorIs(t, err, common.ErrNotAuthenticated)
		})
	}
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{UserID: 7})
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.EqualValues(t, 7, id.UserID)
}
