package restapi

import (
	"time"

	"stoptracker.transitpulse.org/internal/app"
)

// RestAPI serves the JSON endpoints on top of the shared Application.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI builds the API and starts its rate limiter cleanup loop.
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.Server.RateLimit, time.Second, app.Config.Server.APIKeys, app.Clock),
	}
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}
