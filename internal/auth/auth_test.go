package auth

import (
	"testing"
	"time"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter2" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !VerifyPassword("hunter2", hash) {
		t.Fatalf("expected password to verify")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatalf("wrong password must not verify")
	}
}

func TestHashPasswordIsSalted(t *testing.T) {
	h1, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("two hashes of the same input should differ")
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService("test-secret", "HS256", 30)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestNewServiceRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := NewService("s", "XX999", 30); err == nil {
		t.Fatalf("expected error for unknown algorithm")
	}
	if _, err := NewService("s", "RS256", 30); err == nil {
		t.Fatalf("expected error for non-HMAC algorithm")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok, err := svc.IssueToken("alice", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.ValidateToken(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "alice" {
		t.Fatalf("expected sub alice, got %q", claims.Subject)
	}
}

func TestTokenExpiresAfterConfiguredWindow(t *testing.T) {
	svc := newTestService(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tok, err := svc.IssueToken("alice", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.ValidateToken(tok, now.Add(29*time.Minute)); err != nil {
		t.Fatalf("token should still be valid at +29m: %v", err)
	}
	if _, err := svc.ValidateToken(tok, now.Add(31*time.Minute)); err == nil {
		t.Fatalf("token should be expired at +31m")
	}
}

func TestValidateTokenRejectsBadSignature(t *testing.T) {
	svc := newTestService(t)
	other, err := NewService("other-secret", "HS256", 30)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	now := time.Now().UTC()

	tok, err := other.IssueToken("alice", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.ValidateToken(tok, now); err == nil {
		t.Fatalf("expected bad signature to fail")
	}
	if _, err := svc.ValidateToken("not-a-token", now); err == nil {
		t.Fatalf("expected malformed token to fail")
	}
}
