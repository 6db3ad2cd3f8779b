package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

type settings map[string]string

func (s settings) SettingValue(_ context.Context, name string) (string, error) {
	if s == nil {
		return "", errors.New("store down")
	}
	v, ok := s[name]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func router(s SettingReader) http.Handler {
	r := chi.NewRouter()
	r.Route("/admin", func(r chi.Router) {
		r.Use(Gate(s, "admin"))
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func TestGate(t *testing.T) {
	tests := []struct {
		name     string
		settings SettingReader
		secret   string
		status   int
		body     string
	}{
		{"match", settings{"admin": "hunter2"}, "hunter2", http.StatusNoContent, ""},
		{"wrong secret", settings{"admin": "hunter2"}, "hunter3", http.StatusUnauthorized, "incorrect password"},
		{"no header", settings{"admin": "hunter2"}, "", http.StatusUnauthorized, "incorrect password"},
		{"other gate's secret", settings{"admin": "a", "registration": "b"}, "b", http.StatusUnauthorized, "incorrect password"},
		{"setting missing", settings{}, "hunter2", http.StatusServiceUnavailable, "settings not found"},
		{"store failing", settings(nil), "hunter2", http.StatusBadGateway, "settings unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
			if tt.secret != "" {
				req.Header.Set(Header, tt.secret)
			}
			rec := httptest.NewRecorder()
			router(tt.settings).ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				require.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}
