package auth

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndVerify(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, err := tm.GenerateToken("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := tm.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("Expected user-1, got %q", claims.UserID)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Expected alice@example.com, got %q", claims.Email)
	}
	if claims.ID == "" {
		t.Error("Expected a token ID")
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	if _, err := tm.Verify(""); err != ErrNoToken {
		t.Errorf("Expected ErrNoToken, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	other := NewTokenManager("another-secret-that-is-long-enough", time.Hour)

	token, err := tm.GenerateToken("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := other.Verify(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	tm.ttl = -time.Minute

	token, err := tm.GenerateToken("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	tm.ttl = time.Hour
	if _, err := tm.Verify(token); err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, err := tm.GenerateToken("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if tm.IsRevoked(token) {
		t.Error("Fresh token must not be revoked")
	}

	if err := tm.Revoke(token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if !tm.IsRevoked(token) {
		t.Error("Expected token to be revoked")
	}
	if _, err := tm.Verify(token); err != ErrRevokedToken {
		t.Errorf("Expected ErrRevokedToken, got %v", err)
	}
}

func TestRevokeDoesNotAffectOtherTokens(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	t1, _ := tm.GenerateToken("user-1", "alice@example.com")
	t2, _ := tm.GenerateToken("user-1", "alice@example.com")

	if err := tm.Revoke(t1); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := tm.Verify(t2); err != nil {
		t.Errorf("Unrevoked token must still verify, got %v", err)
	}
}

func TestIsRevokedGarbageToken(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)
	if tm.IsRevoked("not-a-jwt") {
		t.Error("Garbage token must not report as revoked")
	}
}

func TestCleanupRevokedTokens(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, _ := tm.GenerateToken("user-1", "alice@example.com")
	if err := tm.Revoke(token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if tm.RevokedTokenCount() != 1 {
		t.Fatalf("Expected 1 revoked token, got %d", tm.RevokedTokenCount())
	}

	// Entries newer than the TTL survive cleanup.
	tm.CleanupRevokedTokens()
	if tm.RevokedTokenCount() != 1 {
		t.Errorf("Expected revocation to survive cleanup, got %d", tm.RevokedTokenCount())
	}

	// Backdate the entry past the TTL; cleanup drops it.
	tm.mu.Lock()
	for id := range tm.revokedTokens {
		tm.revokedTokens[id] = time.Now().Add(-2 * time.Hour)
	}
	tm.mu.Unlock()

	tm.CleanupRevokedTokens()
	if tm.RevokedTokenCount() != 0 {
		t.Errorf("Expected 0 revoked tokens after cleanup, got %d", tm.RevokedTokenCount())
	}
}
