package app

import (
	"crypto/subtle"
	"net/http"
)

// RequiresAPIKey reports whether tracker mutations are restricted to the
// configured keys.
func (app *Application) RequiresAPIKey() bool {
	return len(app.Config.Server.APIKeys) > 0
}

// RequestHasInvalidAPIKey checks the "key" query parameter, falling back to
// the X-API-Key header.
func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	key := r.URL.Query().Get("key")
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	return app.IsInvalidAPIKey(key)
}

func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}
	for _, validKey := range app.Config.Server.APIKeys {
		// Constant-time comparison.
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}
	return true
}
