package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/extract"
	"github.com/JakeFAU/gameresult-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
)

// Strategy names.
const (
	ScriptedName = "browser"
	StealthName  = "stealth-browser"
)

// Profile selects how much the browser disguises itself.
type Profile int

const (
	// Scripted drives a stock browser with automation flags removed.
	Scripted Profile = iota
	// Stealth additionally masks navigator properties and waits for the
	// challenge page to settle before reading content.
	Stealth
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var contentKeywords = []string{"game", "tài xỉu", "bàn đỏ", "kết quả"}

const webdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const stealthScript = webdriverScript + `
Object.defineProperty(navigator, 'languages', {get: () => ['vi-VN', 'vi', 'en-US', 'en']});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
window.chrome = window.chrome || {runtime: {}};`

// Config controls browser behavior.
type Config struct {
	BaseURL           string
	Headless          bool
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	PollInterval      time.Duration
}

// Browser implements game.Strategy by rendering the site in Chrome and
// handing the resulting markup to the extractor.
type Browser struct {
	cfg       Config
	profile   Profile
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewScripted creates the scripted-browser strategy.
func NewScripted(cfg Config, extractor *extract.Extractor, logger *zap.Logger) *Browser {
	return newBrowser(cfg, Scripted, extractor, logger)
}

// NewStealth creates the stealth-browser strategy.
func NewStealth(cfg Config, extractor *extract.Extractor, logger *zap.Logger) *Browser {
	return newBrowser(cfg, Stealth, extractor, logger)
}

func newBrowser(cfg Config, profile Profile, extractor *extract.Extractor, logger *zap.Logger) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if profile == Stealth && cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 10 * time.Second
	}
	if extractor == nil {
		extractor = extract.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, profile: profile, extractor: extractor, logger: logger}
}

// Name implements game.Strategy.
func (b *Browser) Name() string {
	if b.profile == Stealth {
		return StealthName
	}
	return ScriptedName
}

// Attempt renders the landing page in a fresh browser and extracts a result.
func (b *Browser) Attempt(ctx context.Context, def game.Definition) (game.Candidate, error) {
	sess := openSession(ctx, b.Timeout(), b.allocatorOptions())
	defer sess.Close()

	meta := newResponseMeta()
	chromedp.ListenTarget(sess.ctx, meta.captureEvent)

	html, err := b.render(sess.ctx)
	if err != nil {
		return game.Candidate{}, err
	}
	candidate, ok := b.extractor.ExtractMarkup(html, def)
	if !ok {
		status, url := meta.snapshot()
		return game.Candidate{}, fmt.Errorf("%w: rendered %s (status %d)", game.ErrNoCandidate, url, status)
	}
	return candidate, nil
}

func (b *Browser) render(ctx context.Context) (string, error) {
	var html string
	actions := []chromedp.Action{
		b.setupAction(),
		chromedp.Navigate(b.cfg.BaseURL),
	}
	if b.cfg.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(b.cfg.SettleDelay))
	}
	actions = append(actions, b.waitForContent(&html))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).
			WithAcceptLanguage("vi-VN,vi;q=0.9,en;q=0.8").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		script := webdriverScript
		if b.profile == Stealth {
			script = stealthScript
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			return fmt.Errorf("install navigator overrides: %w", err)
		}
		return nil
	})
}

// waitForContent polls the live DOM until the anti-bot interstitial is gone.
func (b *Browser) waitForContent(html *string) chromedp.Action {
	requireKeyword := b.profile == Stealth
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(b.cfg.PollInterval)
		defer ticker.Stop()
		for {
			var current string
			if err := chromedp.OuterHTML("html", &current, chromedp.ByQuery).Do(ctx); err == nil {
				if challengeCleared(current, requireKeyword) {
					*html = current
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("wait for content: %w", ctx.Err())
			case <-ticker.C:
			}
		}
	})
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if b.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(b.cfg.UserAgent),
	)
	if b.profile == Stealth {
		opts = append(opts,
			chromedp.WindowSize(1366, 768),
			chromedp.Flag("lang", "vi-VN"),
		)
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

// Timeout is the budget one Attempt needs: navigation plus settle delay.
func (b *Browser) Timeout() time.Duration {
	return b.cfg.NavigationTimeout + b.cfg.SettleDelay
}

var interstitials = detector.NewHeuristic(0)

// challengeCleared reports whether html looks like real site content. The
// scripted profile accepts any page that is not an anti-bot interstitial; the
// stealth profile waits for a game keyword.
func challengeCleared(html string, requireKeyword bool) bool {
	lower := strings.ToLower(html)
	hasKeyword := false
	for _, kw := range contentKeywords {
		if strings.Contains(lower, kw) {
			hasKeyword = true
			break
		}
	}
	if requireKeyword {
		return hasKeyword
	}
	return hasKeyword || interstitials.Classify(http.StatusOK, []byte(html)) != detector.Challenge
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == 0 {
		return http.StatusOK, m.url
	}
	return m.status, m.url
}
