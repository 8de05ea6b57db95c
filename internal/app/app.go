// Package app initializes and holds the long-lived services of the crawler,
// acting as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/acquire"
	"github.com/JakeFAU/gameresult-crawler/internal/api"
	"github.com/JakeFAU/gameresult-crawler/internal/config"
	"github.com/JakeFAU/gameresult-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/gameresult-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/gameresult-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
	"github.com/JakeFAU/gameresult-crawler/internal/notify/email"
	"github.com/JakeFAU/gameresult-crawler/internal/notify/live"
	"github.com/JakeFAU/gameresult-crawler/internal/notify/pubsub"
	"github.com/JakeFAU/gameresult-crawler/internal/notify/telegram"
	"github.com/JakeFAU/gameresult-crawler/internal/notify/webhook"
	"github.com/JakeFAU/gameresult-crawler/internal/poller"
	"github.com/JakeFAU/gameresult-crawler/internal/storage/gcs"
	"github.com/JakeFAU/gameresult-crawler/internal/storage/local"
	"github.com/JakeFAU/gameresult-crawler/internal/storage/memory"
	"github.com/JakeFAU/gameresult-crawler/internal/storage/postgres"
	"github.com/JakeFAU/gameresult-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/gameresult-crawler/internal/telemetry"
	"github.com/JakeFAU/gameresult-crawler/internal/worker"
)

// App holds the shared services. Build it with New and release it with Close.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       game.Store
	archive     *poller.Archive
	coordinator *acquire.Coordinator
	dispatcher  *notify.Dispatcher
	outbox      *worker.Pool
	hub         *live.Hub
	poller      *poller.Poller

	// closers run in reverse order on Close.
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// New builds every service described by cfg. It fails fast on any
// bootstrap error and releases what it had already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if cfg.Telemetry.Enabled {
		var tp *sdktrace.TracerProvider
		tp, err = telemetry.InitTracerProvider(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.SampleRatio)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.addCloser("tracer", func() error { return tp.Shutdown(context.Background()) })
	}

	if a.store, err = a.buildStore(ctx); err != nil {
		return nil, err
	}
	a.addCloser("store", a.store.Close)

	if err = a.buildArchive(ctx); err != nil {
		return nil, err
	}

	steps, err := a.buildSteps()
	if err != nil {
		return nil, err
	}
	if a.coordinator, err = acquire.New(steps, cfg.Poller.StrategyTimeout, logger.Named("acquire")); err != nil {
		return nil, fmt.Errorf("build coordinator: %w", err)
	}
	a.addCloser("coordinator", a.coordinator.Close)

	a.hub = live.NewHub(cfg.Notify.Live.Enabled, logger.Named("live"))
	a.addCloser("live hub", a.hub.Close)

	channels, err := a.buildChannels(ctx)
	if err != nil {
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(notify.Config{
		Timeout:   cfg.Notify.Timeout,
		APIPrefix: cfg.Server.APIPrefix,
	}, channels, logger.Named("notify"))

	var notifier poller.Notifier = a.dispatcher
	if d := cfg.Notify.Delivery; d.Async {
		a.outbox = worker.New(worker.Config{
			Workers:          d.Workers,
			QueueSize:        d.QueueSize,
			MaxAttempts:      d.MaxAttempts,
			RetryBackoffBase: d.RetryBackoff,
			DrainTimeout:     d.DrainTimeout,
		}, a.dispatcher, logger.Named("outbox"))
		a.outbox.Start(ctx)
		a.addCloser("notification outbox", a.outbox.Close)
		notifier = a.outbox
	}

	games, err := cfg.GameTypes()
	if err != nil {
		return nil, err
	}
	opts := []poller.Option{poller.WithLogger(logger.Named("poller"))}
	if a.archive != nil {
		opts = append(opts, poller.WithArchive(a.archive))
	}
	a.poller, err = poller.New(poller.Config{
		Interval:          cfg.Poller.Interval,
		Games:             games,
		AnnounceLifecycle: cfg.Poller.AnnounceLifecycle,
	}, a.coordinator, a.store, notifier, opts...)
	if err != nil {
		return nil, fmt.Errorf("build poller: %w", err)
	}

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.Strings("strategies", a.coordinator.Strategies()),
		zap.Strings("channels", a.dispatcher.Configured()),
	)
	return a, nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

func (a *App) buildStore(ctx context.Context) (game.Store, error) {
	cfg := a.cfg.Storage
	switch cfg.Driver {
	case config.StorageMemory:
		a.logger.Warn("using in-memory result store; results are lost on restart")
		return memory.NewResultStore(), nil
	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			Table:           cfg.Postgres.Table,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (a *App) buildArchive(ctx context.Context) error {
	cfg := a.cfg.Archive
	var blobs game.BlobStore
	switch cfg.Driver {
	case config.ArchiveNone, "":
		return nil
	case config.ArchiveMemory:
		blobs = memory.NewBlobStore()
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		blobs = store
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.addCloser("gcs client", client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		blobs = store
	default:
		return fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
	a.archive = poller.NewArchive(blobs, cfg.Timeout, a.logger.Named("archive"))
	return nil
}

// buildSteps orders the strategies cheapest first: plain HTTP, scripted
// browser, stealth browser.
func (a *App) buildSteps() ([]acquire.Step, error) {
	extractor := extract.New(extract.WithLogger(a.logger.Named("extract")))
	var steps []acquire.Step

	if a.cfg.HTTP.Enabled {
		strategy, err := collyfetcher.New(collyfetcher.Config{
			BaseURL:           a.cfg.Site.BaseURL,
			UserAgent:         a.cfg.HTTP.UserAgent,
			AcceptLanguage:    a.cfg.Site.AcceptLanguage,
			Timeout:           a.cfg.HTTP.Timeout,
			RequestsPerSecond: a.cfg.HTTP.RequestsPerSecond,
			Burst:             a.cfg.HTTP.Burst,
		}, extractor, a.logger.Named("http"))
		if err != nil {
			return nil, fmt.Errorf("init http strategy: %w", err)
		}
		steps = append(steps, acquire.Step{Strategy: strategy})
	}

	if a.cfg.Browser.Enabled {
		bcfg := headless.Config{
			BaseURL:           a.cfg.Site.BaseURL,
			Headless:          a.cfg.Browser.Headless,
			UserAgent:         a.cfg.Browser.UserAgent,
			ExecPath:          a.cfg.Browser.ExecPath,
			NavigationTimeout: a.cfg.Browser.NavigationTimeout,
			PollInterval:      a.cfg.Browser.PollInterval,
		}
		scripted := headless.NewScripted(bcfg, extractor, a.logger.Named("browser"))
		steps = append(steps, acquire.Step{Strategy: scripted, Timeout: scripted.Timeout()})

		if a.cfg.Browser.StealthEnabled {
			bcfg.SettleDelay = a.cfg.Browser.SettleDelay
			stealth := headless.NewStealth(bcfg, extractor, a.logger.Named("stealth"))
			steps = append(steps, acquire.Step{Strategy: stealth, Timeout: stealth.Timeout()})
		}
	}

	if len(steps) == 0 {
		return nil, errors.New("no acquisition strategy enabled")
	}
	return steps, nil
}

func (a *App) buildChannels(ctx context.Context) ([]notify.Channel, error) {
	n := a.cfg.Notify
	channels := []notify.Channel{
		telegram.New(telegram.Config{
			BotToken:   n.Telegram.BotToken,
			ChatID:     n.Telegram.ChatID,
			APIBaseURL: n.Telegram.APIBaseURL,
			Timeout:    n.Timeout,
		}),
		email.New(email.Config{
			Host:     n.Email.Host,
			Port:     n.Email.Port,
			Username: n.Email.Username,
			Password: n.Email.Password,
			From:     n.Email.From,
			To:       n.Email.To,
			StartTLS: n.Email.StartTLS,
		}),
		webhook.New(webhook.Config{
			URL:     n.Webhook.URL,
			Secret:  n.Webhook.Secret,
			Timeout: n.Timeout,
		}),
		a.hub,
	}

	if n.PubSub.ProjectID != "" && n.PubSub.Topic != "" {
		ch, closeFn, err := pubsub.Connect(ctx, n.PubSub.ProjectID, n.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub channel: %w", err)
		}
		a.addCloser("pubsub", closeFn)
		channels = append(channels, ch)
	}
	return channels, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the result store.
func (a *App) Store() game.Store { return a.store }

// Coordinator returns the acquisition coordinator.
func (a *App) Coordinator() *acquire.Coordinator { return a.coordinator }

// Dispatcher returns the notification dispatcher.
func (a *App) Dispatcher() *notify.Dispatcher { return a.dispatcher }

// Hub returns the websocket hub.
func (a *App) Hub() *live.Hub { return a.hub }

// Outbox returns the background delivery pool, nil when delivery is
// synchronous.
func (a *App) Outbox() *worker.Pool { return a.outbox }

// Poller returns the poll loop.
func (a *App) Poller() *poller.Poller { return a.poller }

// APIServer builds the HTTP façade over the services.
func (a *App) APIServer() *api.Server {
	deps := api.Deps{
		Results:  a.poller,
		Store:    a.store,
		Notifier: a.dispatcher,
		Loop:     a.poller,
	}
	if a.cfg.Notify.Live.Enabled {
		deps.Live = a.hub
	}
	return api.NewServer(deps, a.cfg, a.logger.Named("api"))
}

// Close releases services in reverse construction order and joins their
// errors.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close service", zap.String("service", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
