package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type subject string

func (s subject) GetSubject() (string, error) { return string(s), nil }

type fakeValidator map[string]string

func (f fakeValidator) ValidateToken(token string) (SubjectGetter, error) {
	sub, ok := f[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return subject(sub), nil
}

func TestAuthMiddleware(t *testing.T) {
	validator := fakeValidator{"good": "ops", "anon": ""}

	var seen string
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = Subject(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		header  string
		want    int
		subject string
	}{
		{"valid token", "Bearer good", http.StatusNoContent, "ops"},
		{"lowercase scheme", "bearer good", http.StatusNoContent, "ops"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"no token", "Bearer", http.StatusUnauthorized, ""},
		{"extra parts", "Bearer good extra", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", http.StatusUnauthorized, ""},
		{"empty subject", "Bearer anon", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.subject, seen)
		})
	}
}

func TestSubject_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := Subject(req)
	assert.False(t, ok)
}
