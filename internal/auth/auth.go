// Package auth guards route groups with a shared secret stored as a Setting.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/festreg/internal/model"
	"github.com/Shivanand-hulikatti/festreg/internal/repository"
)

// Header carries the secret on gated requests.
const Header = "X-Gate-Secret"

// SettingReader reads named settings.
type SettingReader interface {
	SettingValue(ctx context.Context, name string) (string, error)
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg})
}

// Gate returns middleware that admits requests whose Header matches the value
// of the named setting. An unset setting closes the gate for everyone.
func Gate(settings SettingReader, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			want, err := settings.SettingValue(r.Context(), name)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				deny(w, http.StatusServiceUnavailable, "settings not found")
				return
			case err != nil:
				deny(w, http.StatusBadGateway, "settings unavailable")
				return
			}
			got := r.Header.Get(Header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				deny(w, http.StatusUnauthorized, "incorrect password")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
