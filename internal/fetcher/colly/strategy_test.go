package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

func taiXiu(t *testing.T) game.Definition {
	t.Helper()
	def, ok := game.Lookup(game.TaiXiu)
	require.True(t, ok)
	return def
}

func newTestStrategy(t *testing.T, baseURL string) *Strategy {
	t.Helper()
	s, err := New(Config{BaseURL: baseURL, Timeout: 2 * time.Second, RequestsPerSecond: 1000, Burst: 10}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil, nil)
	require.Error(t, err)
}

func TestEndpointsOrder(t *testing.T) {
	t.Parallel()

	s := newTestStrategy(t, "https://example.test")
	require.Equal(t, []string{
		"https://example.test/api/tai_xiu",
		"https://example.test/game/tai_xiu/results",
		"https://example.test/tai_xiu",
		"https://example.test/api/game-results/tai_xiu",
		"https://example.test/",
	}, s.Endpoints(taiXiu(t)))
}

func TestAttemptFallsThroughEndpoints(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		visited []string
		langs   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		visited = append(visited, r.URL.Path)
		langs = append(langs, r.Header.Get("Accept-Language"))
		mu.Unlock()
		switch r.URL.Path {
		case "/api/tai_xiu":
			http.NotFound(w, r)
		case "/game/tai_xiu/results":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": "ok"}`))
		case "/tai_xiu":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<div class="tai_xiu-result">Tổng 11</div>`))
		default:
			t.Errorf("unexpected request for %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	got, err := s.Attempt(context.Background(), taiXiu(t))
	require.NoError(t, err)
	require.Equal(t, "11", got.Result)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"/api/tai_xiu", "/game/tai_xiu/results", "/tai_xiu"}, visited)
	for _, lang := range langs {
		require.Equal(t, "vi-VN,vi;q=0.9,en;q=0.8", lang)
	}
}

func TestAttemptExhaustedEndpoints(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Checking your browser</body></html>`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	_, err := s.Attempt(context.Background(), taiXiu(t))
	require.True(t, errors.Is(err, game.ErrNoCandidate))
	require.True(t, errors.Is(err, game.ErrBlocked))
}

func TestAttemptNotBlockedWhenSomeEndpointsAnswer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tai_xiu" {
			_, _ = w.Write([]byte(`<html><title>Just a moment...</title></html>`))
			return
		}
		_, _ = w.Write([]byte(`<html><body>maintenance</body></html>`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	_, err := s.Attempt(context.Background(), taiXiu(t))
	require.True(t, errors.Is(err, game.ErrNoCandidate))
	require.False(t, errors.Is(err, game.ErrBlocked))
	require.False(t, errors.Is(err, game.ErrNeedsBrowser))
}

func TestAttemptCloudflareErrorPageIsBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html><title>Just a moment...</title><script src="/cdn-cgi/challenge-platform/cf-chl.js"></script></html>`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	_, err := s.Attempt(context.Background(), taiXiu(t))
	require.True(t, errors.Is(err, game.ErrNoCandidate))
	require.True(t, errors.Is(err, game.ErrBlocked))
}

func TestAttemptThrottlingSlowsHost(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	_, err := s.Attempt(context.Background(), taiXiu(t))
	require.True(t, errors.Is(err, game.ErrNoCandidate))
	require.False(t, errors.Is(err, game.ErrBlocked))

	mu.Lock()
	require.Equal(t, 5, hits)
	mu.Unlock()
	require.Less(t, float64(s.limiter.Rate(srv.URL)), 1000.0)
}

func TestAttemptScriptShellNeedsBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="__next"></div><script src="/static/app.js"></script></body></html>`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	_, err := s.Attempt(context.Background(), taiXiu(t))
	require.True(t, errors.Is(err, game.ErrNoCandidate))
	require.True(t, errors.Is(err, game.ErrNeedsBrowser))
	require.False(t, errors.Is(err, game.ErrBlocked))
}

func TestAttemptReusesCookies(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("cf_clearance"); err == nil {
			mu.Lock()
			seen = append(seen, c.Value)
			mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "token", Path: "/"})
		_, _ = w.Write([]byte(`{"result": "xiu"}`))
	}))
	defer srv.Close()

	s := newTestStrategy(t, srv.URL)
	for i := 0; i < 2; i++ {
		_, err := s.Attempt(context.Background(), taiXiu(t))
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"token"}, seen)
}

func TestAttemptCanceledContext(t *testing.T) {
	t.Parallel()

	s := newTestStrategy(t, "https://example.test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Attempt(ctx, taiXiu(t))
	require.Error(t, err)
	require.False(t, errors.Is(err, game.ErrNoCandidate))
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	s := newTestStrategy(t, "https://example.test")
	var (
		result   response
		fetchErr error
	)
	hooks := &stubHooks{}
	s.configureCollectorHooks(hooks, &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "https://example.test/", collyReq.Headers.Get("Referer"))
	require.Equal(t, DefaultUserAgent, collyReq.Headers.Get("User-Agent"))
	require.Equal(t, "application/json, text/html, */*", collyReq.Headers.Get("Accept"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/html"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.test/api/tai_xiu")},
	})
	require.Equal(t, http.StatusOK, result.statusCode)
	require.Equal(t, "text/html", result.contentType)
	require.Equal(t, "body", string(result.body))

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
	require.Equal(t, http.StatusForbidden, result.statusCode)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
