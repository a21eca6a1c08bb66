package api_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/paystream/go-session-client/api"
	interrors "github.com/paystream/go-session-client/internal/errors"
)

func mintToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestAccessTokenExpiry(t *testing.T) {
	expiresAt := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	token := mintToken(t, jwtlib.MapClaims{"sub": "user-1", "exp": expiresAt.Unix()})

	expiry, err := api.AccessTokenExpiry(token)
	require.NoError(t, err)
	require.True(t, expiry.Equal(expiresAt))
}

func TestAccessTokenExpiry_NoExpClaim(t *testing.T) {
	token := mintToken(t, jwtlib.MapClaims{"sub": "user-1"})

	expiry, err := api.AccessTokenExpiry(token)
	require.NoError(t, err)
	require.True(t, expiry.IsZero())
}

func TestAccessTokenExpiry_Malformed(t *testing.T) {
	_, err := api.AccessTokenExpiry("not-a-jwt")
	require.ErrorIs(t, err, interrors.ErrTokenMalformed)

	_, err = api.AccessTokenExpiry("   ")
	require.ErrorIs(t, err, interrors.ErrTokenMalformed)
}

func TestAccessTokenExpired(t *testing.T) {
	now := time.Now()

	live := mintToken(t, jwtlib.MapClaims{"exp": now.Add(time.Hour).Unix()})
	require.False(t, api.AccessTokenExpired(live, now))

	stale := mintToken(t, jwtlib.MapClaims{"exp": now.Add(-time.Hour).Unix()})
	require.True(t, api.AccessTokenExpired(stale, now))

	// No exp claim: never expires client-side.
	eternal := mintToken(t, jwtlib.MapClaims{"sub": "user-1"})
	require.False(t, api.AccessTokenExpired(eternal, now))

	// Malformed: treated as expired so the refresh path takes over.
	require.True(t, api.AccessTokenExpired("garbage", now))
}
