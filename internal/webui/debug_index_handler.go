package webui

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"stoptracker.transitpulse.org/internal/appconf"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

const debugFetchTimeout = 10 * time.Second

type debugData struct {
	Title     string
	DataTypes []string
	Pre       string
}

var debugDataTypes = []string{"trips", "vehicles", "trackers", "stops", "cards", "realtime_stats"}

func writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := debugTemplate.Execute(w, debugData{
		Title:     title,
		DataTypes: debugDataTypes,
		Pre:       spew.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugIndexHandler dumps one kind of in-memory state. Feeds are fetched
// through the shared cache like any other caller. Not served in production.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Application == nil || webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), debugFetchTimeout)
	defer cancel()

	var (
		data  any
		title string
		err   error
	)
	switch r.URL.Query().Get("dataType") {
	case "trips":
		title = "GTFS Realtime - Trip Updates"
		data, err = webUI.Realtime.TripUpdates(ctx)
	case "vehicles":
		title = "GTFS Realtime - Vehicles"
		data, err = webUI.Realtime.Vehicles(ctx)
	case "trackers":
		title = "Tracked Items"
		data = webUI.Trackers.List()
	case "stops":
		title = "Stop Directory"
		data = webUI.Stops.All()
	case "cards":
		title = "Dashboard Cards"
		data = webUI.Dashboard.Cards()
	case "realtime_stats":
		title = "GTFS Realtime - Cache"
		data = webUI.Realtime.Stats()
	default:
		title = "Choose a data type"
		data = map[string]any{"dataType": debugDataTypes}
	}
	if err != nil {
		title += " (fetch failed)"
		data = map[string]string{"error": err.Error()}
	}

	writeDebugData(w, title, data)
}
