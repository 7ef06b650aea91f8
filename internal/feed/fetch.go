package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"stoptracker.transitpulse.org/internal/apperrors"
	"stoptracker.transitpulse.org/internal/logging"
)

// MaxBodySize caps a single upstream response.
const MaxBodySize = 25 * 1024 * 1024

// FetchObserver receives the outcome of every upstream download. A nil
// observer is allowed.
type FetchObserver interface {
	ObserveFetch(source string, duration time.Duration, err error)
}

// Fetcher downloads upstream bodies as raw bytes.
type Fetcher struct {
	client   *http.Client
	headers  map[string]string
	observer FetchObserver
}

// NewHTTPClient returns a client with explicit timeouts, cloned from the
// default transport so proxy and HTTP/2 settings are preserved.
func NewHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewFetcher returns a Fetcher sending headers on every request. client may
// be nil, in which case NewHTTPClient(0) is used.
func NewFetcher(client *http.Client, headers map[string]string, observer FetchObserver) *Fetcher {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &Fetcher{client: client, headers: headers, observer: observer}
}

// Fetch downloads url and returns the body bytes. source names the upstream
// in errors, logs and metrics. Network failures and non-2xx responses are
// reported as *apperrors.UpstreamFetchError.
func (f *Fetcher) Fetch(ctx context.Context, source, url string) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if f.observer != nil {
			f.observer.ObserveFetch(source, time.Since(start), err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperrors.UpstreamFetchError{Source: source, Err: err}
	}
	for key, value := range f.headers {
		req.Header.Add(key, value)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &apperrors.UpstreamFetchError{Source: source, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		logging.FromContext(ctx).With(slog.String("component", "feed_fetcher")),
		"http_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperrors.UpstreamFetchError{Source: source, StatusCode: resp.StatusCode}
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, &apperrors.UpstreamFetchError{Source: source, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if int64(len(body)) > MaxBodySize {
		return nil, &apperrors.UpstreamFetchError{Source: source, Err: fmt.Errorf("response exceeds size limit of %d bytes", MaxBodySize)}
	}
	return body, nil
}
