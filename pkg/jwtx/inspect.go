package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Inspect decodes the claims of a token WITHOUT verifying its signature.
// Clients never hold the signing key; they only need exp to decide whether
// a token is worth sending.
func Inspect(token string) (Claims, error) {
	var c Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &c); err != nil {
		return Claims{}, ErrMalformed
	}
	return c, nil
}

// ExpiresAt returns the exp claim of an unverified token.
func ExpiresAt(token string) (time.Time, error) {
	c, err := Inspect(token)
	if err != nil {
		return time.Time{}, err
	}
	if c.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return c.ExpiresAt.Time, nil
}

// IsExpired reports whether token is past its exp claim at now. Tokens that
// cannot be decoded count as expired.
func IsExpired(token string, now time.Time) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return err != ErrNoExpiry
	}
	return !now.Before(exp)
}
