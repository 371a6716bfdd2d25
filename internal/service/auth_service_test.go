package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/examcore/internal/config"
)

func newTestAuth(t *testing.T) *AuthService {
	t.Helper()
	return NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: 4,
	})
}

func TestAuth_RoundTrip(t *testing.T) {
	auth := newTestAuth(t)
	tok, err := auth.GenerateToken("cand-42", RoleCandidate, "Ada")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := auth.ValidateToken(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "cand-42" || claims.Role != RoleCandidate || claims.Name != "Ada" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAuth_Expired(t *testing.T) {
	auth := newTestAuth(t)
	tok, err := auth.GenerateToken("cand-42", RoleCandidate, "")
	if err != nil {
		t.Fatal(err)
	}

	auth.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = auth.ValidateToken(tok)
	if !IsExpired(err) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestAuth_RejectsWrongSecretAndRole(t *testing.T) {
	auth := newTestAuth(t)

	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
	tok, _ := other.GenerateToken("admin-1", RoleAdmin, "")
	if _, err := auth.ValidateToken(tok); err == nil {
		t.Fatal("token signed with another secret was accepted")
	}

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: Role("root"),
	}
	raw, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if _, err := auth.ValidateToken(raw); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("unknown role: err = %v", err)
	}
}

func TestAuth_AccessCode(t *testing.T) {
	auth := newTestAuth(t)
	hash, err := auth.HashAccessCode("OPEN-SESAME")
	if err != nil {
		t.Fatal(err)
	}
	if err := auth.CheckAccessCode(hash, "OPEN-SESAME"); err != nil {
		t.Fatalf("correct code rejected: %v", err)
	}
	if err := auth.CheckAccessCode(hash, "wrong"); !errors.Is(err, ErrInvalidAccessCode) {
		t.Fatalf("wrong code: err = %v", err)
	}
}
