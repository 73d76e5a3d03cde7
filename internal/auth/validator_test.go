package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

func newHS256Validator(t *testing.T, opts Options) *Validator {
	t.Helper()
	opts.Secret = testSecret
	v, err := NewValidator(context.Background(), opts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := newHS256Validator(t, Options{})
	token := signToken(t, jwt.MapClaims{
		"sub":   "user-123",
		"email": "ada@example.com",
		"user_metadata": map[string]any{
			"full_name": "Ada Lovelace",
		},
	})

	ident, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.Subject != "user-123" {
		t.Errorf("subject = %q", ident.Subject)
	}
	if ident.Email != "ada@example.com" {
		t.Errorf("email = %q", ident.Email)
	}
	if ident.Name != "Ada Lovelace" {
		t.Errorf("name = %q", ident.Name)
	}
}

func TestVerifyNameHintPrecedence(t *testing.T) {
	v := newHS256Validator(t, Options{})
	token := signToken(t, jwt.MapClaims{
		"sub":  "u",
		"name": "Top Level",
		"user_metadata": map[string]any{
			"full_name": "Nested",
		},
	})
	ident, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if ident.Name != "Top Level" {
		t.Errorf("expected top-level name claim to win, got %q", ident.Name)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := newHS256Validator(t, Options{ClockSkew: time.Second})
	token := signToken(t, jwt.MapClaims{
		"sub": "u",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := v.Verify(token); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := newHS256Validator(t, Options{})
	claims := jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte("wrong-secret"))

	if _, err := v.Verify(signed); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestVerifyChecksIssuerAndAudience(t *testing.T) {
	v := newHS256Validator(t, Options{
		Issuer:   "https://auth.example.com",
		Audience: "kurio",
	})

	good := signToken(t, jwt.MapClaims{
		"sub": "u", "iss": "https://auth.example.com", "aud": "kurio",
	})
	if _, err := v.Verify(good); err != nil {
		t.Errorf("valid issuer/audience rejected: %v", err)
	}

	badIss := signToken(t, jwt.MapClaims{
		"sub": "u", "iss": "https://evil.example.com", "aud": "kurio",
	})
	if _, err := v.Verify(badIss); err != ErrUnauthorized {
		t.Errorf("expected rejection for wrong issuer, got %v", err)
	}
}

func TestVerifyChecksAuthorizedParty(t *testing.T) {
	v := newHS256Validator(t, Options{AuthorizedParties: []string{"web", "cli"}})

	good := signToken(t, jwt.MapClaims{"sub": "u", "azp": "cli"})
	if _, err := v.Verify(good); err != nil {
		t.Errorf("authorized party rejected: %v", err)
	}

	bad := signToken(t, jwt.MapClaims{"sub": "u", "azp": "rogue"})
	if _, err := v.Verify(bad); err != ErrUnauthorized {
		t.Errorf("expected rejection for unauthorized party, got %v", err)
	}
}

func TestVerifyRequiresSubject(t *testing.T) {
	v := newHS256Validator(t, Options{})
	token := signToken(t, jwt.MapClaims{"email": "no-sub@example.com"})
	if _, err := v.Verify(token); err != ErrUnauthorized {
		t.Errorf("expected rejection for missing subject, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := newHS256Validator(t, Options{})
	token := signToken(t, jwt.MapClaims{"sub": "user-9"})

	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(v)(next)

	// Valid token passes identity through.
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.Subject != "user-9" {
		t.Errorf("identity not propagated, got %+v", got)
	}

	// Missing and malformed credentials are rejected generically.
	for _, header := range []string{"", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest("GET", "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: expected 401, got %d", header, rec.Code)
		}
	}
}
