package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the result of a successful token verification.
type Identity struct {
	UserID    uuid.UUID
	Email     string
	FullName  string
	AvatarURL string
}

// TokenVerifier validates a bearer token and returns the identity it asserts.
// Implemented by JWTVerifier; the collab handler treats it as an external
// identity service.
type TokenVerifier interface {
	Verify(tokenStr string) (*Identity, error)
}

type JWTVerifier struct {
	secret []byte
	// Verified identities are cached per token string so reconnect storms do
	// not re-parse the same JWT. Entries expire well before typical token TTLs.
	verified *cache.Cache
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(secret),
		verified: cache.New(5*time.Minute, 10*time.Minute),
	}
}

func (v *JWTVerifier) Verify(tokenStr string) (*Identity, error) {
	if cached, found := v.verified.Get(tokenStr); found {
		return cached.(*Identity), nil
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userIDStr, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, ErrInvalidToken
	}

	identity := &Identity{UserID: userID}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := claims["full_name"].(string); ok {
		identity.FullName = name
	}
	if avatar, ok := claims["avatar_url"].(string); ok {
		identity.AvatarURL = avatar
	}

	v.verified.Set(tokenStr, identity, cache.DefaultExpiration)
	return identity, nil
}
