package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T, accessTTL time.Duration) *TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := NewTokenService(privPEM, pubPEM, accessTTL, time.Hour)
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestTokenPairRoundTrip(t *testing.T) {
	svc := newTestTokenService(t, time.Minute)

	pair, err := svc.GenerateTokenPair(42, "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	access, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if access.UserID != 42 || access.Role != "admin" {
		t.Fatalf("unexpected claims %+v", access)
	}

	refresh, err := svc.ValidateRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if refresh.ID != pair.RefreshID {
		t.Fatalf("expected jti %q, got %q", pair.RefreshID, refresh.ID)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	svc := newTestTokenService(t, time.Minute)
	pair, err := svc.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected wrong token type, got %v", err)
	}
	if _, err := svc.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected wrong token type, got %v", err)
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	svc := newTestTokenService(t, -time.Minute)
	pair, err := svc.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestTokenFromOtherKeyRejected(t *testing.T) {
	a := newTestTokenService(t, time.Minute)
	b := newTestTokenService(t, time.Minute)
	pair, err := a.GenerateTokenPair(1, "user")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := b.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Fatalf("expected signature check to fail")
	}
}

func TestPasswordPolicyAndHash(t *testing.T) {
	if err := ValidatePassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected too long, got %v", err)
	}

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("correct horse", hash) || CheckPasswordHash("wrong horse", hash) {
		t.Fatalf("hash check mismatch")
	}
}
