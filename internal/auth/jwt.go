// Package auth signs and checks the tokens behind public capture links.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience marks share tokens so they cannot be confused with other tokens
// signed by the same secret.
const Audience = "objectory-share"

// DefaultShareTTL is the default lifetime of a share link.
const DefaultShareTTL = 7 * 24 * time.Hour

// ShareClaims represents the claims of a share link token.
type ShareClaims struct {
	CaptureID string `json:"capture_id"`
	ItemID    string `json:"item_id"`
	jwt.RegisteredClaims
}

// GenerateShareToken creates a signed token granting download access to one
// capture for ttl.
func GenerateShareToken(secret, captureID, itemID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty share secret")
	}
	if ttl <= 0 {
		ttl = DefaultShareTTL
	}

	jti, err := generateJTI()
	if err != nil {
		return "", fmt.Errorf("generating JTI: %w", err)
	}

	now := time.Now()
	claims := ShareClaims{
		CaptureID: captureID,
		ItemID:    itemID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateShareToken parses and validates a share token, returning the
// claims.
func ValidateShareToken(secret, tokenStr string) (*ShareClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ShareClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithAudience(Audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*ShareClaims)
	if !ok || !token.Valid || claims.CaptureID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// generateJTI creates a random token ID.
func generateJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
