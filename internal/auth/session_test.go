package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	a, err := New(time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := a.CreateJWT(userID)
	require.NoError(t, err)

	got, err := a.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestJWTWithoutExpiry(t *testing.T) {
	a, err := New(0)
	require.NoError(t, err)

	token, err := a.CreateJWT(uuid.New())
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	_, hasExp := claims["exp"]
	assert.False(t, hasExp)
}

func TestJWTRejections(t *testing.T) {
	a, err := New(time.Hour)
	require.NoError(t, err)
	other, err := New(time.Hour)
	require.NoError(t, err)

	foreign, err := other.CreateJWT(uuid.New())
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString(a.privateKey)
	require.NoError(t, err)

	notUUID, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub": "alice",
	}).SignedString(a.privateKey)
	require.NoError(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"other key":    foreign,
		"expired":      expired,
		"non-uuid sub": notUUID,
		"wrong algo":   hmac,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.AuthenticateJWT(token)
			assert.Error(t, err)
		})
	}
}

func TestNewFromPath(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o600))

	a, err := NewFromPath(privPath, pubPath, time.Hour)
	require.NoError(t, err)
	id := uuid.New()
	token, err := a.CreateJWT(id)
	require.NoError(t, err)
	got, err := a.AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = NewFromPath(filepath.Join(dir, "missing"), pubPath, 0)
	assert.Error(t, err)
	_, err = NewFromPath(pubPath, pubPath, 0)
	assert.Error(t, err, "a public key is not a private key")
}
