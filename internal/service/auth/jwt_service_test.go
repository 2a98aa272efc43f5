package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/apply-orchestrator/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "test-secret-that-is-long-enough-for-testing"
	wrongSecret = "wrong-secret-that-is-long-enough-for-testing"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func mustService(t *testing.T, secret string, now time.Time) *hmacJWTService {
	t.Helper()
	svc, err := newHMACJWTService(secret, time.Hour, fixedClock(now))
	require.NoError(t, err)
	return svc
}

func TestNewJWTService(t *testing.T) {
	t.Parallel()

	svc, err := NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60})
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: "short", TokenLifetimeMinutes: 60})
	assert.Error(t, err)

	_, err = NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	assert.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ownerID := uuid.New()
	svc := mustService(t, testSecret, fixedTime)

	token, err := svc.GenerateToken(context.Background(), ownerID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, ownerID, claims.OwnerID)
	assert.Equal(t, ownerID.String(), claims.Subject)
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestValidateTokenFailures(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ownerID := uuid.New()

	tests := []struct {
		name      string
		setupFunc func(t *testing.T) (*hmacJWTService, string)
		wantErr   error
	}{
		{
			name: "expired token",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				token, err := mustService(t, testSecret, fixedTime).GenerateToken(context.Background(), ownerID)
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime.Add(2*time.Hour)), token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "within clock skew is accepted",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				token, err := mustService(t, testSecret, fixedTime).GenerateToken(context.Background(), ownerID)
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime.Add(time.Hour+time.Minute)), token
			},
			wantErr: nil,
		},
		{
			name: "wrong signing key",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				token, err := mustService(t, wrongSecret, fixedTime).GenerateToken(context.Background(), ownerID)
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed token",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				return mustService(t, testSecret, fixedTime), "not.a.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing owner claim",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				claims := jwt.RegisteredClaims{
					Subject:   "someone",
					IssuedAt:  jwt.NewNumericDate(fixedTime),
					ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime), token
			},
			wantErr: ErrMissingOwner,
		},
		{
			name: "no expiry",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				claims := jwtCustomClaims{OwnerID: ownerID}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "unexpected signing method",
			setupFunc: func(t *testing.T) (*hmacJWTService, string) {
				claims := jwtCustomClaims{
					OwnerID: ownerID,
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(fixedTime.Add(time.Hour)),
					},
				}
				token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
				require.NoError(t, err)
				return mustService(t, testSecret, fixedTime), token
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc(t)
			claims, err := svc.ValidateToken(context.Background(), token)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, ownerID, claims.OwnerID)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, claims)
		})
	}
}
