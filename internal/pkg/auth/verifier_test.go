package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	userID := uuid.New()

	tokenStr := signToken(t, testSecret, jwt.MapClaims{
		"user_id":    userID.String(),
		"email":      "alice@example.com",
		"full_name":  "Alice",
		"avatar_url": "https://cdn.example.com/a.png",
		"exp":        time.Now().Add(time.Hour).Unix(),
	})

	identity, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "Alice", identity.FullName)
	assert.Equal(t, "https://cdn.example.com/a.png", identity.AvatarURL)

	// Second call hits the cache and returns the same identity.
	again, err := v.Verify(tokenStr)
	require.NoError(t, err)
	assert.Same(t, identity, again)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier(testSecret)
	userID := uuid.New()

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage",
			token: "not-a-jwt",
		},
		{
			name: "wrong secret",
			token: signToken(t, "some-other-secret", jwt.MapClaims{
				"user_id": userID.String(),
				"exp":     time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "expired",
			token: signToken(t, testSecret, jwt.MapClaims{
				"user_id": userID.String(),
				"exp":     time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "missing user id",
			token: signToken(t, testSecret, jwt.MapClaims{
				"email": "alice@example.com",
				"exp":   time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "user id not a uuid",
			token: signToken(t, testSecret, jwt.MapClaims{
				"user_id": "42",
				"exp":     time.Now().Add(time.Hour).Unix(),
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, identity)
		})
	}
}
