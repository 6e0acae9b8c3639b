// Package auth issues and verifies the credentials that gate every API
// request and every realtime channel handshake.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no authentication token provided")
	ErrInvalidToken = errors.New("invalid authentication token")
	ErrExpiredToken = errors.New("token has expired")
	ErrRevokedToken = errors.New("token has been revoked")
)

// DefaultTokenTTL matches the lifetime of issued credentials; revocations are
// retained at least this long so a revoked token stays dead until it expires.
const DefaultTokenTTL = 24 * time.Hour

// Claims represents the JWT claims for an authenticated user.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenManager signs, verifies, and revokes user tokens. Revocation is an
// in-process list keyed by token id; entries are dropped once older than the
// token TTL.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration

	mu            sync.RWMutex
	revokedTokens map[string]time.Time // token ID -> revocation time
}

// NewTokenManager creates a token manager signing with the given secret key.
func NewTokenManager(secretKey string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		secretKey:     []byte(secretKey),
		ttl:           ttl,
		revokedTokens: make(map[string]time.Time),
	}
}

// GenerateToken issues a signed token for the given user.
func (tm *TokenManager) GenerateToken(userID, email string) (string, error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(tm.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// Verify validates a token's signature and expiry and returns its claims.
// Revocation is a separate check (IsRevoked) consulted before verification.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	tm.mu.RLock()
	_, revoked := tm.revokedTokens[claims.ID]
	tm.mu.RUnlock()
	if revoked {
		return nil, ErrRevokedToken
	}

	return claims, nil
}

// IsRevoked reports whether the token appears on the revocation list.
// Unparseable tokens are not revoked; they fail Verify instead.
func (tm *TokenManager) IsRevoked(tokenString string) bool {
	claims, err := parseUnverified(tokenString)
	if err != nil {
		return false
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, revoked := tm.revokedTokens[claims.ID]
	return revoked
}

// Revoke adds a token to the revocation list. The token's signature is not
// re-checked; revoking garbage is harmless.
func (tm *TokenManager) Revoke(tokenString string) error {
	claims, err := parseUnverified(tokenString)
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.revokedTokens[claims.ID] = time.Now()
	return nil
}

// CleanupRevokedTokens removes revocation entries older than the token TTL;
// those tokens are expired and fail verification anyway.
func (tm *TokenManager) CleanupRevokedTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	cutoff := time.Now().Add(-tm.ttl)
	for tokenID, revokedAt := range tm.revokedTokens {
		if revokedAt.Before(cutoff) {
			delete(tm.revokedTokens, tokenID)
		}
	}
}

// RevokedTokenCount returns the number of revoked tokens (for testing).
func (tm *TokenManager) RevokedTokenCount() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.revokedTokens)
}

func parseUnverified(tokenString string) (*Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// generateTokenID generates a cryptographically random token ID.
func generateTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
