// Package auth validates the bearer tokens that identify an applicant.
// Account management is out of scope; tokens are issued by the operator
// tooling (applyctl token) or by an upstream identity service sharing the
// signing secret.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JWTService issues and validates bearer tokens.
type JWTService interface {
	// GenerateToken creates a signed token for ownerID.
	GenerateToken(ctx context.Context, ownerID uuid.UUID) (string, error)

	// ValidateToken checks signature and lifetime and returns the claims.
	// It returns ErrExpiredToken, ErrTokenNotYetValid, ErrMissingOwner or
	// ErrInvalidToken.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of a token.
type Claims struct {
	// OwnerID identifies the applicant whose tasks the bearer may touch.
	OwnerID   uuid.UUID `json:"oid,omitempty"`
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
