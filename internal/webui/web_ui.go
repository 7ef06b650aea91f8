// Package webui serves the browser-facing pages: the static dashboard assets
// and a debug dump of in-memory state.
package webui

import (
	"net/http"

	"stoptracker.transitpulse.org/internal/app"
)

type WebUI struct {
	*app.Application
}

// SetWebUIRoutes registers the debug page and the static asset catch-all.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug", webUI.debugIndexHandler)
	mux.HandleFunc("GET /{$}", webUI.staticHandler)
	mux.HandleFunc("GET /assets/{file}", webUI.staticHandler)
	mux.HandleFunc("GET /{file}", webUI.staticHandler)
}
