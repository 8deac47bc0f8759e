package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestValidate_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Generate("vk:42", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "header.payload.signature")

	got, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "vk:42", got)
}

func TestGenerate_RequiresUser(t *testing.T) {
	_, err := newTestTokenService(t).Generate("", time.Hour)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, err := NewTokenService("wrong-secret-32-chars-long!!!!!!")
	require.NoError(t, err)

	good, err := ts.Generate("vk:42", time.Hour)
	require.NoError(t, err)
	expired, err := ts.Generate("vk:42", -time.Second)
	require.NoError(t, err)
	foreign, err := other.Generate("vk:42", time.Hour)
	require.NoError(t, err)

	// Correct secret, wrong issuer.
	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "vk:42",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(ts.secret)
	require.NoError(t, err)

	// No expiry at all.
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "vk:42",
		Issuer:  issuer,
	}).SignedString(ts.secret)
	require.NoError(t, err)

	tests := map[string]string{
		"expired":      expired,
		"tampered":     good[:len(good)-3] + "xxx",
		"wrong secret": foreign,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
		"empty":        "",
		"garbage":      "not.a.jwt.token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ts.Validate(token)
			assert.Error(t, err)
		})
	}
}
