package core

import (
	"errors"
	"time"
)

const (
	DefaultVerifierTTL     = 300  // 5 minutes
	DefaultTokenTTL        = 3600 // 1 hour
	DefaultCookieName      = "edu_session"
	DefaultSuccessRedirect = "/dashboard"
	DefaultErrorRedirect   = "/error"

	minSecretLength = 32
)

var ErrInvalidSessionSecret = errors.New("session secret must be at least 32 bytes")

type Config struct {
	Session SessionConfig `yaml:"session"`
}

type SessionConfig struct {
	Secret      string `yaml:"secret"`       // Signs session cookies and derives the token encryption key
	VerifierTTL int    `yaml:"verifier_ttl"` // Pending authorization lifetime in seconds
	TokenTTL    int    `yaml:"token_ttl"`    // Stored provider token lifetime in seconds

	CookieName   string `yaml:"cookie_name"`
	CookieSecure bool   `yaml:"cookie_secure"`

	// Providers that drop the state parameter on the way back need this
	SkipStateValidation bool `yaml:"skip_state_validation"`

	SuccessRedirect string `yaml:"success_redirect"`
	ErrorRedirect   string `yaml:"error_redirect"`
}

// SetDefaults fills unset fields
func (c *Config) SetDefaults() {
	if c.Session.VerifierTTL <= 0 {
		c.Session.VerifierTTL = DefaultVerifierTTL
	}
	if c.Session.TokenTTL <= 0 {
		c.Session.TokenTTL = DefaultTokenTTL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultCookieName
	}
	if c.Session.SuccessRedirect == "" {
		c.Session.SuccessRedirect = DefaultSuccessRedirect
	}
	if c.Session.ErrorRedirect == "" {
		c.Session.ErrorRedirect = DefaultErrorRedirect
	}
}

func (c *Config) Validate() error {
	if len(c.Session.Secret) < minSecretLength {
		return ErrInvalidSessionSecret
	}
	return nil
}

func (c *Config) VerifierLifetime() time.Duration {
	return time.Duration(c.Session.VerifierTTL) * time.Second
}

func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.Session.TokenTTL) * time.Second
}
