// Package middleware provides HTTP middleware for authentication.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const subjectKey ContextKey = "subject"

// TokenValidator validates a bearer token and returns its subject.
type TokenValidator interface {
	ValidateToken(token string) (SubjectGetter, error)
}

// SubjectGetter extracts the operator identity from validated claims.
type SubjectGetter interface {
	GetSubject() (string, error)
}

// AuthMiddleware rejects requests without a valid bearer token and stores
// the token subject in the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.Fields(r.Header.Get("Authorization"))
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Subject returns the authenticated operator from the request context.
func Subject(r *http.Request) (string, bool) {
	s, ok := r.Context().Value(subjectKey).(string)
	return s, ok
}
