package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestBrowserNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, ScriptedName, NewScripted(Config{}, nil, nil).Name())
	require.Equal(t, StealthName, NewStealth(Config{}, nil, nil).Name())
}

func TestBrowserDefaults(t *testing.T) {
	t.Parallel()

	scripted := NewScripted(Config{}, nil, nil)
	require.Equal(t, 30*time.Second, scripted.Timeout())
	require.Equal(t, defaultUserAgent, scripted.cfg.UserAgent)

	stealth := NewStealth(Config{NavigationTimeout: 5 * time.Second}, nil, nil)
	require.Equal(t, 15*time.Second, stealth.Timeout())
	require.Greater(t, len(stealth.allocatorOptions()), len(scripted.allocatorOptions()))
}

func TestChallengeCleared(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		html           string
		requireKeyword bool
		want           bool
	}{
		{name: "interstitial", html: "<title>Just a moment... Cloudflare</title>", want: false},
		{name: "plain page", html: "<p>welcome</p>", want: true},
		{name: "banner with keyword", html: "Cloudflare <div>Tài Xỉu</div>", want: true},
		{name: "stealth needs keyword", html: "<p>welcome</p>", requireKeyword: true, want: false},
		{name: "stealth keyword", html: "<h1>KẾT QUẢ</h1>", requireKeyword: true, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, challengeCleared(tt.html, tt.requireKeyword))
		})
	}
}

func TestSessionCloseCancelsContext(t *testing.T) {
	t.Parallel()

	sess := openSession(context.Background(), time.Minute, NewScripted(Config{}, nil, nil).allocatorOptions())
	require.NoError(t, sess.ctx.Err())
	sess.Close()
	require.Error(t, sess.ctx.Err())
	sess.Close()
}

func TestAttemptCanceledContextReleasesSession(t *testing.T) {
	t.Parallel()

	b := NewScripted(Config{BaseURL: "https://example.test/", NavigationTimeout: time.Second}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Attempt(ctx, gameDefinition(t))
	require.Error(t, err)
}

func TestResponseMetaCapturesDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	status, _ := meta.snapshot()
	require.Equal(t, http.StatusOK, status)

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://example.test/x.png"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403, URL: "https://example.test/"},
	})
	status, url := meta.snapshot()
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "https://example.test/", url)
}
