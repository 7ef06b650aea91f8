package restapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"stoptracker.transitpulse.org/internal/clock"
)

const (
	limiterIdleTimeout = 10 * time.Minute
	limiterSweepEvery  = 5 * time.Minute
)

type rateLimitClient struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimitMiddleware applies a token bucket per client address. Callers
// presenting a configured API key are exempt; any other key is ignored so
// made-up keys cannot buy extra buckets.
type RateLimitMiddleware struct {
	mu         sync.RWMutex
	clients    map[string]*rateLimitClient
	limit      rate.Limit
	burst      int
	exemptKeys map[string]bool
	clock      clock.Clock

	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRateLimitMiddleware allows ratePerInterval requests per interval and
// caller. Zero blocks everything; a negative rate disables limiting.
func NewRateLimitMiddleware(ratePerInterval int, interval time.Duration, exemptKeys []string, clk clock.Clock) *RateLimitMiddleware {
	var limit rate.Limit
	switch {
	case ratePerInterval < 0:
		limit = rate.Inf
	case ratePerInterval == 0:
		limit = 0
	default:
		limit = rate.Every(interval / time.Duration(ratePerInterval))
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	exempt := make(map[string]bool, len(exemptKeys))
	for _, key := range exemptKeys {
		if key = strings.TrimSpace(key); key != "" {
			exempt[key] = true
		}
	}

	rl := &RateLimitMiddleware{
		clients:    make(map[string]*rateLimitClient),
		limit:      limit,
		burst:      ratePerInterval,
		exemptKeys: exempt,
		clock:      clk,
		ticker:     time.NewTicker(limiterSweepEvery),
		stopChan:   make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Handler returns the middleware.
func (rl *RateLimitMiddleware) Handler() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.hasExemptKey(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.getLimiter(clientAddress(r)).Allow() {
				rl.sendRateLimitExceeded(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimitMiddleware) hasExemptKey(r *http.Request) bool {
	if len(rl.exemptKeys) == 0 {
		return false
	}
	return rl.exemptKeys[r.URL.Query().Get("key")] || rl.exemptKeys[r.Header.Get("X-API-Key")]
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimitMiddleware) getLimiter(key string) *rate.Limiter {
	now := rl.clock.Now().UnixNano()

	rl.mu.RLock()
	client, ok := rl.clients[key]
	rl.mu.RUnlock()
	if ok {
		client.lastSeen.Store(now)
		return client.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if client, ok := rl.clients[key]; ok {
		client.lastSeen.Store(now)
		return client.limiter
	}
	client = &rateLimitClient{limiter: rate.NewLimiter(rl.limit, rl.burst)}
	client.lastSeen.Store(now)
	rl.clients[key] = client
	return client.limiter
}

func (rl *RateLimitMiddleware) sendRateLimitExceeded(w http.ResponseWriter) {
	retryAfter := time.Second
	switch rl.limit {
	case 0:
		retryAfter = time.Hour
	case rate.Inf:
	default:
		if every := time.Duration(float64(time.Second) / float64(rl.limit)); every > retryAfter {
			retryAfter = every
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: "Rate limit exceeded. Please try again later."}); err != nil {
		slog.Error("failed to encode rate limit response", "error", err)
	}
}

// cleanupOnce evicts callers idle for longer than limiterIdleTimeout.
func (rl *RateLimitMiddleware) cleanupOnce() {
	cutoff := rl.clock.Now().Add(-limiterIdleTimeout).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, client := range rl.clients {
		if seen := client.lastSeen.Load(); seen != 0 && seen < cutoff {
			delete(rl.clients, key)
		}
	}
}

func (rl *RateLimitMiddleware) sweep() {
	for {
		select {
		case <-rl.ticker.C:
			rl.cleanupOnce()
		case <-rl.stopChan:
			return
		}
	}
}

// Stop ends the sweep goroutine. Safe to call more than once.
func (rl *RateLimitMiddleware) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
		rl.ticker.Stop()
	})
}

func (rl *RateLimitMiddleware) clientCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}
