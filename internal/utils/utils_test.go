package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	at, err := NewAccessToken("secret", 42, "ADMIN", 15)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), at.Exp, 5*time.Second)

	id, role, err := ParseAccessToken("secret", at.Token)
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)
	require.Equal(t, "ADMIN", role)

	_, _, err = ParseAccessToken("other-secret", at.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessTokenRejects(t *testing.T) {
	expired, err := NewAccessToken("secret", 1, "USER", -1)
	require.NoError(t, err)
	_, _, err = ParseAccessToken("secret", expired.Token)
	require.ErrorIs(t, err, ErrInvalidToken)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "role": "USER"}).
		SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = ParseAccessToken("secret", noExp)
	require.ErrorIs(t, err, ErrInvalidToken)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, _, err = ParseAccessToken("secret", noRole)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = ParseAccessToken("secret", "not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshToken(t *testing.T) {
	rt, err := NewRefreshToken(7)
	require.NoError(t, err)
	require.Len(t, rt.Raw, 96)

	other, err := NewRefreshToken(7)
	require.NoError(t, err)
	require.NotEqual(t, rt.Raw, other.Raw)

	h := HashRefreshRaw(rt.Raw)
	require.Len(t, h, 64)
	require.Equal(t, h, HashRefreshRaw(rt.Raw))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "correct horse"))
	require.False(t, VerifyPassword(hash, "wrong horse"))

	require.Error(t, ValidatePassword("short"))
	require.Error(t, ValidatePassword("        "))
	require.Error(t, ValidatePassword(strings.Repeat("x", 73)))
	require.NoError(t, ValidatePassword("long enough"))
}
