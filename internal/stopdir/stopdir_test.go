package stopdir

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirectory(t *testing.T) {
	d := Default()

	assert.Equal(t, []string{"121", "A", "R"}, d.Routes())
	assert.Len(t, d.Stops("A"), 4)

	stop, ok := d.Lookup("A", "34233", "")
	require.True(t, ok)
	assert.Equal(t, "Union Station (Track 1)", stop.Name)
	assert.Equal(t, "Eastbound", stop.Dir)
}

func TestLookupUsesCanonicalRoute(t *testing.T) {
	d := Default()

	stop, ok := d.Lookup("107R", "34600", "Northbound")
	require.True(t, ok)
	assert.Equal(t, "Lincoln Station", stop.Name)

	_, ok = d.Lookup("R", "34600", "Southbound")
	assert.False(t, ok, "direction must match when given")

	_, ok = d.Lookup("A", "34600", "")
	assert.False(t, ok, "stop belongs to another route")

	assert.Empty(t, d.Stops("999"))
}

func TestParseRejectsStopWithoutID(t *testing.T) {
	_, err := Parse([]byte("A:\n  - { name: Nowhere, dir: North }\n"))
	assert.Error(t, err)
}

func TestParseAcceptsJSON(t *testing.T) {
	d, err := Parse([]byte(`{"W": [{"id": "1", "name": "Jeffco", "dir": "Westbound"}]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string][]Stop{"W": {{ID: "1", Name: "Jeffco", Dir: "Westbound"}}}, d.All())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stops.yaml")
	require.NoError(t, os.WriteFile(path, []byte("G:\n  - { id: \"9\", name: Arvada, dir: Westbound }\n"), 0o644))

	d, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"G"}, d.Routes())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var b bytes.Buffer
	w := zip.NewWriter(&b)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return b.Bytes()
}

func TestFromStatic(t *testing.T) {
	archive := buildZip(t, map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\nrtd,RTD,https://rtd-denver.com,America/Denver",
		"routes.txt": "route_id,agency_id,route_short_name,route_type\n107R,rtd,R,2\n121,rtd,,3",
		"stops.txt":  "stop_id,stop_name,stop_lat,stop_lon\n34600,Lincoln Station,39.54,-104.87\n34614,Aurora Metro Center,39.70,-104.82\n24806,Peoria St & 17th Ave,39.74,-104.84",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"wk,1,1,1,1,1,0,0,20260101,20261231",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"107R,wk,r1,Peoria,0\n107R,wk,r2,Peoria,0\n121,wk,b1,,1",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"r1,08:00:00,08:00:00,34600,1\nr1,08:20:00,08:20:00,34614,2\n" +
			"r2,09:00:00,09:00:00,34600,1\n" +
			"b1,10:00:00,10:00:00,24806,1",
	})

	d, err := FromStatic(archive)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"121", "R"}, d.Routes())
	assert.Equal(t, []Stop{
		{ID: "34600", Name: "Lincoln Station", Dir: "Northbound"},
		{ID: "34614", Name: "Aurora Metro Center", Dir: "Northbound"},
	}, d.Stops("107R"))

	stop, ok := d.Lookup("121", "24806", "")
	require.True(t, ok)
	assert.Equal(t, "Direction 1", stop.Dir)
}

func TestFromStaticRejectsGarbage(t *testing.T) {
	_, err := FromStatic([]byte("not a zip"))
	assert.Error(t, err)
}
