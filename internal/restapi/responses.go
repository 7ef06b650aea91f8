package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"stoptracker.transitpulse.org/internal/apperrors"
	"stoptracker.transitpulse.org/internal/logging"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) sendJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	setJSONResponseType(w)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(api.requestLogger(r), "failed to encode response", err)
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, status int, message string) {
	api.sendJSON(w, r, status, ErrorResponse{Error: message})
}

// sendFailure maps err onto a status. Input errors echo their message;
// anything else is logged and answered with message.
func (api *RestAPI) sendFailure(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusBadRequest {
		api.sendError(w, r, status, err.Error())
		return
	}
	logging.LogError(api.requestLogger(r), message, err, slog.String("path", r.URL.Path))
	api.sendError(w, r, status, message)
}

func (api *RestAPI) requestLogger(r *http.Request) *slog.Logger {
	if logger := logging.FromContext(r.Context()); logger != slog.Default() || api.Logger == nil {
		return logger
	}
	return api.Logger
}
