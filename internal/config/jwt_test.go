package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT(t *testing.T) {
	validSecret := strings.Repeat("s", MinSecretLength)

	tests := []struct {
		name    string
		server  ServerConfig
		wantErr string
	}{
		{
			name:   "valid",
			server: ServerConfig{JWTSecret: validSecret, JWTIssuer: "ops", TokenTTL: time.Hour},
		},
		{
			name:    "missing secret",
			server:  ServerConfig{TokenTTL: time.Hour},
			wantErr: "JWT_SECRET is required",
		},
		{
			name:    "short secret",
			server:  ServerConfig{JWTSecret: "short", TokenTTL: time.Hour},
			wantErr: "at least 32 characters",
		},
		{
			name:    "ttl too short",
			server:  ServerConfig{JWTSecret: validSecret, TokenTTL: time.Second},
			wantErr: "JWT_TTL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Server: tt.server}
			jwt, err := cfg.JWT()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, jwt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, validSecret, jwt.Secret)
			assert.Equal(t, "ops", jwt.Issuer)
			assert.Equal(t, time.Hour, jwt.TTL)
		})
	}
}

func TestJWT_DefaultIssuer(t *testing.T) {
	cfg := &Config{Server: ServerConfig{JWTSecret: strings.Repeat("k", 40), TokenTTL: time.Hour}}
	jwt, err := cfg.JWT()
	require.NoError(t, err)
	assert.Equal(t, "seo-autopilot", jwt.Issuer)
}
