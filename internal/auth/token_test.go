package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/defterly/chat-service/internal/chat"
)

var testSecret = []byte("test-signing-secret")

// fakeUserStore resolves a fixed set of users.
type fakeUserStore struct {
	users map[string]*chat.User
}

func (s *fakeUserStore) GetUser(_ context.Context, id string) (*chat.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, chat.ErrUserNotFound
}

func signToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func newValidator() *TokenValidator {
	store := &fakeUserStore{users: map[string]*chat.User{
		"u1": {ID: "u1", Email: "acc@example.com", Role: chat.RoleAccountant},
	}}
	return NewTokenValidator(testSecret, store)
}

func TestValidate_Success(t *testing.T) {
	v := newValidator()
	token := signToken(t, "u1", time.Now().Add(time.Hour))

	user, err := v.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" {
		t.Errorf("expected user u1, got %q", user.ID)
	}
	if user.Email != "acc@example.com" {
		t.Errorf("unexpected email %q", user.Email)
	}
}

func TestValidate_MissingToken(t *testing.T) {
	v := newValidator()

	_, err := v.Validate(context.Background(), "")
	if !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	v := newValidator()
	token := signToken(t, "u1", time.Now().Add(-time.Hour))

	_, err := v.Validate(context.Background(), token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidate_BadSignature(t *testing.T) {
	v := newValidator()

	claims := Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	_, err = v.Validate(context.Background(), token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_Garbage(t *testing.T) {
	v := newValidator()

	_, err := v.Validate(context.Background(), "not.a.jwt")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidate_UnknownUser(t *testing.T) {
	v := newValidator()
	token := signToken(t, "u-ghost", time.Now().Add(time.Hour))

	_, err := v.Validate(context.Background(), token)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestTokenFromQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"simple", "token=abc123", "abc123"},
		{"with other params", "lang=tr&token=abc123&v=2", "abc123"},
		// JWTs routinely end in base64 padding; the value must survive intact.
		{"token containing equals", "token=eyJhbGci.eyJzdWIi.sig==", "eyJhbGci.eyJzdWIi.sig=="},
		{"missing", "lang=tr&v=2", ""},
		{"empty query", "", ""},
		{"bare key without value", "token", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenFromQuery(tt.query); got != tt.want {
				t.Errorf("TokenFromQuery(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}
