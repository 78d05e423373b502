package auth

import (
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	token, err := svc.Generate(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := svc.Verify(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenService([]byte("secret-a"), time.Hour).Generate(42)
	require.NoError(t, err)

	_, err = NewTokenService([]byte("secret-b"), time.Hour).Verify(token)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	now := time.Now().Add(-2 * time.Hour)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "42",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenForeignIssuerRejected(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   strconv.FormatInt(42, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(foreign)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenGarbageRejected(t *testing.T) {
	svc := NewTokenService([]byte("test-secret"), time.Hour)

	_, err := svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestTokenDefaultTTL(t *testing.T) {
	require.Equal(t, 24*time.Hour, NewTokenService([]byte("s"), 0).TTL())
	require.Equal(t, time.Minute, NewTokenService([]byte("s"), time.Minute).TTL())
}
