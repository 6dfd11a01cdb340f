package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// LocalVerifier validates HS256 bearer tokens signed with a shared secret.
// It exists for local development and emulator environments where the
// Firebase Admin SDK is not configured; never enabled in production.
type LocalVerifier struct {
	secret []byte
}

// NewLocalVerifier builds a verifier for HS256 tokens signed with secret.
func NewLocalVerifier(secret string) (*LocalVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth: local jwt secret is required")
	}
	return &LocalVerifier{secret: []byte(secret)}, nil
}

func (v *LocalVerifier) VerifyToken(_ context.Context, tokenStr string) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return Claims{}, fmt.Errorf("%w: missing sub claim", ErrTokenInvalid)
	}

	claims := Claims{
		UID:    sub,
		Custom: map[string]any(mapClaims),
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}
