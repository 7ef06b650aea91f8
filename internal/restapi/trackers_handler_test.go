package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stoptracker.transitpulse.org/internal/appconf"
	"stoptracker.transitpulse.org/internal/tracker"
)

const unionStation = `{"route":"A","stopId":"34233","dir":"Eastbound"}`

func TestTrackers_AddListRemove(t *testing.T) {
	env := createTestApi(t)
	srv := env.serve(t)

	resp, body := doRequest(t, http.MethodPost, srv.URL+"/trackers", unionStation, "Content-Type", "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created tracker.TrackedItem
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, tracker.TrackedItem{
		ID:        testNow.UnixMilli(),
		Route:     "A",
		StopID:    "34233",
		StopName:  "Union Station (Track 1)",
		Direction: "Eastbound",
	}, created)

	_, items := getJSON[[]tracker.TrackedItem](t, srv.URL+"/trackers")
	assert.Equal(t, []tracker.TrackedItem{created}, items)

	raw, ok, err := env.api.Store.Get(t.Context(), tracker.StateKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, fmt.Sprintf(`[{"id":%d,"route":"A","stopId":"34233","stopName":"Union Station (Track 1)","dir":"Eastbound"}]`, created.ID), string(raw))

	resp, _ = doRequest(t, http.MethodDelete, fmt.Sprintf("%s/trackers/%d", srv.URL, created.ID), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, fmt.Sprintf("%s/trackers/%d", srv.URL, created.ID), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "removing an absent id is a no-op")

	resp, body = doRequest(t, http.MethodGet, srv.URL+"/trackers", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestTrackers_AddRejectsBadInput(t *testing.T) {
	srv := createTestApi(t).serve(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing route", `{"stopId":"34233","dir":"Eastbound"}`, "route"},
		{"missing dir", `{"route":"A","stopId":"34233"}`, "dir"},
		{"missing stop", `{"route":"A","dir":"Eastbound"}`, "stop"},
		{"stop not on route", `{"route":"R","stopId":"34233","dir":"Eastbound"}`, "not served"},
		{"not json", `route=A`, "JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doRequest(t, http.MethodPost, srv.URL+"/trackers", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &errResp))
			assert.Contains(t, errResp.Error, tt.want)
		})
	}

	resp, body := doRequest(t, http.MethodGet, srv.URL+"/trackers", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, "[]", string(body))
}

func TestTrackers_RemoveRejectsNonNumericID(t *testing.T) {
	srv := createTestApi(t).serve(t)

	resp, body := doRequest(t, http.MethodDelete, srv.URL+"/trackers/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "numeric")
}

func TestTrackers_APIKeyGuardsMutations(t *testing.T) {
	env := createTestApi(t, func(cfg *appconf.Config) {
		cfg.Server.APIKeys = []string{"secret"}
	})
	srv := env.serve(t)

	resp, _ := doRequest(t, http.MethodPost, srv.URL+"/trackers", unionStation)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/trackers?key=wrong", unionStation)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, srv.URL+"/trackers?key=secret", unionStation)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, srv.URL+"/trackers/1", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, srv.URL+"/trackers", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads stay open")
}
