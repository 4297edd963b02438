package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim of a JWT without verifying it. ok is false
// when the token is not a JWT or carries no exp, in which case it is treated
// as never expiring.
func tokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// expired reports whether a cached token must be fetched again.
func expired(token string, now time.Time) bool {
	exp, ok := tokenExpiry(token)
	return ok && exp.Before(now)
}
