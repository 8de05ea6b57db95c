// Package ratelimit implements per-host token buckets that slow down when the
// site starts answering 429 or 503.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
)

// minRate is the floor reached after repeated throttling responses.
const minRate = rate.Limit(0.05)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for rawURL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.forHost(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, d)
	}
	return nil
}

// ReportStatus feeds a response status back. Throttling answers halve the
// host's rate; a 200 restores the configured rate.
func (l *Limiter) ReportStatus(rawURL string, status int) {
	if l.defaultRate == rate.Inf {
		return
	}
	limiter := l.forHost(hostOf(rawURL))
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		next := limiter.Limit() / 2
		if next < minRate {
			next = minRate
		}
		limiter.SetLimit(next)
	case http.StatusOK:
		if limiter.Limit() != l.defaultRate {
			limiter.SetLimit(l.defaultRate)
		}
	}
}

// Rate returns the current rate for rawURL's host.
func (l *Limiter) Rate(rawURL string) rate.Limit {
	return l.forHost(hostOf(rawURL)).Limit()
}

func (l *Limiter) forHost(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
