package auth

import (
	"context"
	"errors"
)

var (
	// ErrTokenExpired signals that the provided bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided bearer token is invalid.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the provider-neutral result of a successful token verification.
type Claims struct {
	UID    string
	Email  string
	Custom map[string]any
}

// TokenVerifier verifies bearer tokens from any supported issuer.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Claims, error)
}
