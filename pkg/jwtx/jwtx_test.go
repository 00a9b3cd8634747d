package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/loyalty/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("s", 32))

func TestValidateExpiry(t *testing.T) {
	now := time.Now().UTC()

	t.Run("valid token", func(t *testing.T) {
		c := jwtx.NewAccessClaims("u1", "a@b.c", nil, time.Minute, "loyalty", now)
		require.NoError(t, c.ValidateExpiry())
	})

	t.Run("expired token", func(t *testing.T) {
		c := jwtx.NewAccessClaims("u1", "a@b.c", nil, -time.Minute, "loyalty", now)
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrExpired)
	})

	t.Run("leeway absorbs skew", func(t *testing.T) {
		c := jwtx.NewAccessClaims("u1", "a@b.c", nil, -time.Second, "loyalty", now)
		require.NoError(t, c.ValidateExpiryWithLeeway(time.Minute))
	})

	t.Run("not yet valid", func(t *testing.T) {
		c := jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{
			NotBefore: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		require.ErrorIs(t, c.ValidateExpiry(), jwtx.ErrNotYetValid)
	})
}

func TestHS256RoundTrip(t *testing.T) {
	signer, err := jwtx.NewHS256(testSecret, "loyalty")
	require.NoError(t, err)

	now := time.Now().UTC()
	token, err := signer.Sign(jwtx.NewAccessClaims("u1", "a@b.c", []string{"ADMIN"}, time.Minute, "loyalty", now))
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.Subject)
	require.Equal(t, []string{"ADMIN"}, claims.Roles)

	other, err := jwtx.NewHS256([]byte(strings.Repeat("x", 32)), "loyalty")
	require.NoError(t, err)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)

	expired, err := signer.Sign(jwtx.NewAccessClaims("u1", "a@b.c", nil, -time.Minute, "loyalty", now))
	require.NoError(t, err)
	_, err = signer.Verify(expired)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestNewHS256RejectsShortSecret(t *testing.T) {
	_, err := jwtx.NewHS256([]byte("short"), "loyalty")
	require.ErrorIs(t, err, jwtx.ErrShortSecret)
}

func TestInspect(t *testing.T) {
	signer, err := jwtx.NewHS256(testSecret, "loyalty")
	require.NoError(t, err)

	now := time.Now().UTC()
	token, err := signer.Sign(jwtx.NewAccessClaims("u1", "a@b.c", nil, time.Hour, "loyalty", now))
	require.NoError(t, err)

	exp, err := jwtx.ExpiresAt(token)
	require.NoError(t, err)
	require.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	require.False(t, jwtx.IsExpired(token, now))
	require.True(t, jwtx.IsExpired(token, now.Add(2*time.Hour)))

	// Garbage counts as expired
	require.True(t, jwtx.IsExpired("not.a.jwt", now))
	_, err = jwtx.Inspect("nope")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}
