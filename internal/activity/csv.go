package activity

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"

	"stoptracker.transitpulse.org/internal/apperrors"
)

// minColumns is timestamp and route; the vehicle column is optional.
const minColumns = 2

// ParseCSV parses an activity export: timestamp(ms), routeId, vehicleId, ...
// The first row is a header and is skipped. Rows with too few columns, a
// non-numeric timestamp or an empty route are dropped. Only a body that
// cannot be read at all is an error.
func ParseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var entries []Entry
	header := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				header = false
				continue
			}
			return nil, &apperrors.DecodeError{Format: "activity csv", Err: err}
		}
		if header {
			header = false
			continue
		}

		entry, ok := parseRow(record)
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func parseRow(record []string) (Entry, bool) {
	if len(record) < minColumns {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return Entry{}, false
	}
	route := strings.TrimSpace(record[1])
	if route == "" {
		return Entry{}, false
	}
	entry := Entry{Timestamp: ts, RouteID: route}
	if len(record) > 2 {
		entry.VehicleID = strings.TrimSpace(record[2])
	}
	return entry, true
}

// Downloader fetches raw bytes; *feed.Fetcher satisfies it.
type Downloader interface {
	Fetch(ctx context.Context, source, url string) ([]byte, error)
}

// Source downloads and parses the published activity export.
type Source struct {
	URL        string
	Downloader Downloader
}

// Load downloads and parses the export.
func (s *Source) Load(ctx context.Context) ([]Entry, error) {
	body, err := s.Downloader.Fetch(ctx, "activity_log", s.URL)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(body))
}
