package core_test

import (
	"testing"
	"time"

	"eduauthd/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSessionToken_RoundTrip(t *testing.T) {
	sessionID := uuid.New()

	token, err := core.GenerateSessionToken(sessionID, testKey, time.Hour)
	require.NoError(t, err)

	got, err := core.ValidateSessionToken(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, sessionID, got)
}

func TestSessionToken_Expired(t *testing.T) {
	token, err := core.GenerateSessionToken(uuid.New(), testKey, -time.Minute)
	require.NoError(t, err)

	_, err = core.ValidateSessionToken(token, testKey)
	assert.ErrorIs(t, err, core.ErrExpiredToken)
}

func TestSessionToken_WrongKey(t *testing.T) {
	token, err := core.GenerateSessionToken(uuid.New(), testKey, time.Hour)
	require.NoError(t, err)

	_, err = core.ValidateSessionToken(token, []byte("another-key-another-key-another!"))
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionToken_WrongIssuer(t *testing.T) {
	claims := &core.SessionClaims{
		SessionID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)

	_, err = core.ValidateSessionToken(token, testKey)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestSessionToken_Garbage(t *testing.T) {
	id, err := core.ValidateSessionToken("not.a.token", testKey)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	assert.Equal(t, uuid.Nil, id)
}
