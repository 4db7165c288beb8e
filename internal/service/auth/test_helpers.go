package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/config"
	"github.com/stretchr/testify/require"
)

// TestJWTSecret is the signing secret used by DefaultJWTConfig.
const TestJWTSecret = "test-jwt-secret-that-is-32-chars-long"

// DefaultJWTConfig returns an AuthConfig suitable for tests.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecret: TestJWTSecret}
}

// RequireTestJWTService creates a JWTService with DefaultJWTConfig.
func RequireTestJWTService(t *testing.T) JWTService {
	t.Helper()
	svc, err := NewJWTService(DefaultJWTConfig())
	require.NoError(t, err, "Failed to create test JWT service")
	return svc
}

// GenerateAuthHeaderForTestingT returns a "Bearer <token>" header value for
// userID, valid for an hour.
func GenerateAuthHeaderForTestingT(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := RequireTestJWTService(t).GenerateToken(context.Background(), userID, time.Hour)
	require.NoError(t, err, "Failed to generate auth header")
	return "Bearer " + token
}
