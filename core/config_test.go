package core_test

import (
	"testing"
	"time"

	"eduauthd/core"

	"github.com/stretchr/testify/assert"
)

func TestConfig_SetDefaults(t *testing.T) {
	config := &core.Config{}
	config.SetDefaults()

	assert.Equal(t, 5*time.Minute, config.VerifierLifetime())
	assert.Equal(t, time.Hour, config.TokenLifetime())
	assert.Equal(t, core.DefaultCookieName, config.Session.CookieName)
	assert.Equal(t, "/dashboard", config.Session.SuccessRedirect)
	assert.Equal(t, "/error", config.Session.ErrorRedirect)
	assert.False(t, config.Session.SkipStateValidation)
}

func TestConfig_KeepsExplicitValues(t *testing.T) {
	config := &core.Config{Session: core.SessionConfig{VerifierTTL: 60, CookieName: "sid"}}
	config.SetDefaults()

	assert.Equal(t, time.Minute, config.VerifierLifetime())
	assert.Equal(t, "sid", config.Session.CookieName)
}

func TestConfig_Validate(t *testing.T) {
	config := &core.Config{Session: core.SessionConfig{Secret: "short"}}
	assert.ErrorIs(t, config.Validate(), core.ErrInvalidSessionSecret)

	config.Session.Secret = testSecret
	assert.NoError(t, config.Validate())
}
