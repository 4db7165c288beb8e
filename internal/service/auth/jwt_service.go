// Package auth verifies the bearer tokens that identify letter owners.
//
// Accounts live outside this service: tokens are issued elsewhere and signed
// with a shared HMAC secret. The subject claim carries the owner's user ID.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC signing secret.
const MinSecretLength = 32

// JWTService verifies and, for operators and tests, issues HS256 tokens.
type JWTService interface {
	// ValidateToken verifies the signature and time claims of tokenString and
	// returns its claims. The subject must be a user UUID.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// GenerateToken signs a token for userID that expires after lifetime.
	GenerateToken(ctx context.Context, userID uuid.UUID, lifetime time.Duration) (string, error)
}

// Claims are the verified contents of a token.
type Claims struct {
	// UserID is parsed from the subject claim.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
