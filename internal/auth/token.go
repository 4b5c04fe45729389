// Package auth verifies the bearer tokens presented by connecting clients
// and resolves them to platform users. Tokens are HS256 JWTs issued by the
// account service; this package only validates, it never issues.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/defterly/chat-service/internal/chat"
)

// Admission error taxonomy. Each maps to a distinct close code at the
// gateway so clients can distinguish causes.
var (
	ErrTokenMissing = errors.New("auth: token missing")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrUserNotFound = errors.New("auth: user not found")
)

// Claims is the JWT payload issued by the account service. The user_id
// claim carries the subject's user ID.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenValidator verifies bearer tokens and resolves the embedded identity
// claim to a user record. Its only I/O is the user lookup.
type TokenValidator struct {
	secret []byte
	users  chat.UserStore
}

// NewTokenValidator creates a validator using the given HMAC signing secret
// and user store.
func NewTokenValidator(secret []byte, users chat.UserStore) *TokenValidator {
	return &TokenValidator{secret: secret, users: users}
}

// Validate checks the token's signature and expiry and resolves its user_id
// claim to a user record. The returned error is one of the admission
// sentinels above (possibly wrapped).
func (v *TokenValidator) Validate(ctx context.Context, token string) (*chat.User, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	user, err := v.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, chat.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: user_id=%s", ErrUserNotFound, claims.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: resolve user %s: %w", claims.UserID, err)
	}
	return user, nil
}
