// Package collyfetcher implements the lightweight HTTP acquisition strategy
// using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/extract"
	"github.com/JakeFAU/gameresult-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/gameresult-crawler/internal/fetcher/ratelimit"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

// Name identifies the strategy in logs and metrics.
const Name = "http"

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Config controls collector behavior.
type Config struct {
	BaseURL           string
	UserAgent         string
	AcceptLanguage    string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Strategy fetches candidate endpoints with one long-lived collector so
// cookies and connections carry over between polls.
type Strategy struct {
	cfg           Config
	transport     *http.Transport
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	extractor     *extract.Extractor
	detector      *detector.Heuristic
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type response struct {
	url         string
	statusCode  int
	contentType string
	body        []byte
}

// New builds a Strategy.
func New(cfg Config, extractor *extract.Extractor, logger *zap.Logger) (*Strategy, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("base url is required")
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "vi-VN,vi;q=0.9,en;q=0.8"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if extractor == nil {
		extractor = extract.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.UserAgent(cfg.UserAgent),
	)
	transport := newHTTPTransport()
	c.WithTransport(cloudflarebp.AddCloudFlareByPass(transport))
	c.SetRequestTimeout(cfg.Timeout)

	return &Strategy{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.RequestsPerSecond, Burst: cfg.Burst}),
		extractor:     extractor,
		detector:      detector.NewHeuristic(0),
		logger:        logger,
	}, nil
}

// Name implements game.Strategy.
func (s *Strategy) Name() string {
	return Name
}

// Endpoints lists the URLs tried for def, in order.
func (s *Strategy) Endpoints(def game.Definition) []string {
	base := s.cfg.BaseURL
	gt := def.Type.String()
	return []string{
		base + "api/" + gt,
		base + "game/" + gt + "/results",
		base + gt,
		base + "api/game-results/" + gt,
		base,
	}
}

// Attempt walks the endpoint list and returns the first extracted candidate.
// When every endpoint that answered served an anti-bot page the error also
// wraps game.ErrBlocked; when some 200 page was a script-rendered shell it
// wraps game.ErrNeedsBrowser.
func (s *Strategy) Attempt(ctx context.Context, def game.Definition) (game.Candidate, error) {
	endpoints := s.Endpoints(def)
	answered, blocked, shells := 0, 0, 0
	for _, endpoint := range endpoints {
		if err := s.limiter.Wait(ctx, endpoint); err != nil {
			return game.Candidate{}, err
		}
		resp, err := s.fetch(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return game.Candidate{}, err
			}
			s.logger.Debug("endpoint failed", zap.String("url", endpoint), zap.Error(err))
			continue
		}
		answered++
		s.limiter.ReportStatus(endpoint, resp.statusCode)
		reason := s.detector.Classify(resp.statusCode, resp.body)
		if reason == detector.Challenge {
			blocked++
			s.logger.Debug("bot challenge detected", zap.String("url", endpoint), zap.Int("status", resp.statusCode))
			continue
		}
		if resp.statusCode != http.StatusOK {
			s.logger.Debug("endpoint non-200", zap.String("url", endpoint), zap.Int("status", resp.statusCode))
			continue
		}
		if candidate, ok := s.extractor.Extract(resp.body, resp.contentType, def); ok {
			return candidate, nil
		}
		if reason != detector.None {
			shells++
			s.logger.Debug("page needs a browser", zap.String("url", endpoint), zap.String("reason", string(reason)))
		}
	}
	switch {
	case answered > 0 && blocked == answered:
		return game.Candidate{}, fmt.Errorf("%w: %w on %d endpoints", game.ErrNoCandidate, game.ErrBlocked, blocked)
	case shells > 0:
		return game.Candidate{}, fmt.Errorf("%w: %w on %d endpoints", game.ErrNoCandidate, game.ErrNeedsBrowser, shells)
	}
	return game.Candidate{}, fmt.Errorf("%w: %d endpoints exhausted", game.ErrNoCandidate, len(endpoints))
}

// Close drops pooled connections held by the shared transport.
func (s *Strategy) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

func (s *Strategy) fetch(ctx context.Context, endpoint string) (response, error) {
	var (
		result   response
		fetchErr error
	)
	collector := s.baseCollector.Clone()
	s.configureCollectorHooks(collector, &result, &fetchErr)
	if err := s.runCollector(ctx, collector, endpoint, &fetchErr); err != nil {
		return response{}, err
	}
	return result, nil
}

func (s *Strategy) configureCollectorHooks(hooks collectorHooks, result *response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		s.applyHeaders(r.Headers)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = response{
			url:         r.Request.URL.String(),
			statusCode:  r.StatusCode,
			contentType: r.Headers.Get("Content-Type"),
			body:        append([]byte(nil), r.Body...),
		}
	})

	// Only transport failures land here; HTTP error statuses go through
	// OnResponse.
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.statusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func (s *Strategy) applyHeaders(h *http.Header) {
	h.Set("User-Agent", s.cfg.UserAgent)
	h.Set("Accept", "application/json, text/html, */*")
	h.Set("Accept-Language", s.cfg.AcceptLanguage)
	h.Set("Referer", s.cfg.BaseURL)
}

func (s *Strategy) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
