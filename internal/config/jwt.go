package config

import (
	"fmt"
	"time"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// JWTConfig holds configuration for signing and verifying operator tokens.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// JWT returns the token configuration. It fails when no usable secret is
// configured, so only commands that issue or check tokens require one.
func (c *Config) JWT() (*JWTConfig, error) {
	jwt := &JWTConfig{
		Secret: c.Server.JWTSecret,
		Issuer: c.Server.JWTIssuer,
		TTL:    c.Server.TokenTTL,
	}
	if err := jwt.normalize(); err != nil {
		return nil, err
	}
	return jwt, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters, got %d", MinSecretLength, len(c.Secret))
	}
	if c.TTL < time.Minute {
		return fmt.Errorf("JWT_TTL must be at least 1m, got %s", c.TTL)
	}
	if c.Issuer == "" {
		c.Issuer = "seo-autopilot"
	}
	return nil
}
