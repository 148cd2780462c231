// ABOUTME: Tests for pre-dial bearer token expiry inspection.
// ABOUTME: Covers opaque tokens, live JWTs, expired JWTs, and missing exp claims.

package upstream

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signToken creates an HS256 JWT with the given claims.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestCheckToken(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{"empty token passes", "", nil},
		{"opaque token passes", "not-a-jwt-at-all", nil},
		{
			"live jwt passes",
			signToken(t, jwt.MapClaims{"sub": "user", "exp": now.Add(time.Hour).Unix()}),
			nil,
		},
		{
			"expired jwt rejected",
			signToken(t, jwt.MapClaims{"sub": "user", "exp": now.Add(-time.Hour).Unix()}),
			ErrExpiredToken,
		},
		{
			"jwt without exp passes",
			signToken(t, jwt.MapClaims{"sub": "user"}),
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkToken(tt.token, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
