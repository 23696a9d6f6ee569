package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/seo-autopilot/internal/config"
)

func newTestTokens(issuer string, now time.Time) *TokenService {
	s := NewTokenService(&config.JWTConfig{Secret: testSecret, Issuer: issuer, TTL: time.Hour})
	s.now = func() time.Time { return now }
	return s
}

func TestTokenService_RoundTrip(t *testing.T) {
	s := newTestTokens("seo-autopilot", testNow)

	token, expires, err := s.GenerateToken("ops")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(time.Hour), expires)

	claims, err := s.ValidateToken(token)
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", sub)
	assert.Equal(t, "seo-autopilot", claims.Issuer)

	validated, err := s.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	sub, _ = validated.GetSubject()
	assert.Equal(t, "ops", sub)
}

func TestTokenService_Rejects(t *testing.T) {
	issuer := newTestTokens("seo-autopilot", testNow)
	good, _, err := issuer.GenerateToken("ops")
	require.NoError(t, err)

	foreign, _, err := newTestTokens("someone-else", testNow).GenerateToken("ops")
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "ops",
		Issuer:    "seo-autopilot",
		ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
	}}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "ops",
		Issuer:  "seo-autopilot",
	}}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		svc   *TokenService
		token string
		want  string
	}{
		{"empty", issuer, "", "empty"},
		{"garbage", issuer, "not.a.token", "malformed"},
		{"expired", newTestTokens("seo-autopilot", testNow.Add(2*time.Hour)), good, "expired"},
		{"wrong issuer", issuer, foreign, "failed to parse"},
		{"wrong algorithm", issuer, hs512, "signature"},
		{"no expiry", issuer, noExpiry, "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.svc.ValidateToken(tt.token)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTokenService_BadSignature(t *testing.T) {
	other := NewTokenService(&config.JWTConfig{Secret: testSecret + "-rotated", Issuer: "seo-autopilot", TTL: time.Hour})
	other.now = func() time.Time { return testNow }
	token, _, err := other.GenerateToken("ops")
	require.NoError(t, err)

	_, err = newTestTokens("seo-autopilot", testNow).ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature")
}

func TestTokenService_EmptySubject(t *testing.T) {
	_, _, err := newTestTokens("seo-autopilot", testNow).GenerateToken("")
	assert.Error(t, err)
}
