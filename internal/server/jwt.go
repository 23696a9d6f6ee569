package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/seo-autopilot/internal/config"
	"github.com/jonathan/seo-autopilot/internal/server/middleware"
)

// Claims are the operator token claims. The operator name is the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and validates operator tokens.
type TokenService struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewTokenService creates a token service.
func NewTokenService(cfg *config.JWTConfig) *TokenService {
	return &TokenService{config: cfg, now: time.Now}
}

// GenerateToken signs a token for subject and returns it with its expiry.
func (s *TokenService) GenerateToken(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("token subject is empty")
	}
	now := s.now()
	expiresAt := now.Add(s.config.TTL)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks the signature, issuer and time claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) {
			return []byte(s.config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// AsTokenValidator adapts the service to the auth middleware.
func (s *TokenService) AsTokenValidator() middleware.TokenValidator {
	return tokenValidator{s}
}

type tokenValidator struct{ service *TokenService }

func (v tokenValidator) ValidateToken(token string) (middleware.SubjectGetter, error) {
	claims, err := v.service.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
