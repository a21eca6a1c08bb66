package api

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/paystream/go-session-client/internal/errors"
)

// AccessTokenExpiry reads the exp claim from an access token without
// verifying its signature. The client never validates tokens - the backend
// does that - but knowing the expiry lets the controller skip a verification
// call that is guaranteed to fail and go straight to a refresh.
func AccessTokenExpiry(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, errors.ErrTokenMalformed
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrTokenMalformed, "parse access token: %v", err)
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		// Tokens without an exp claim never expire client-side.
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// AccessTokenExpired reports whether the token's exp claim is in the past.
// Malformed tokens are treated as expired so the caller falls back to the
// refresh path rather than sending a credential it cannot reason about.
func AccessTokenExpired(rawToken string, now time.Time) bool {
	exp, err := AccessTokenExpiry(rawToken)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return exp.Before(now)
}
