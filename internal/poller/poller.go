// Package poller drives the fixed-interval acquisition loop: acquire the
// current result for every game, keep only confirmed-new ones, persist them,
// archive a snapshot, and hand them to the notification dispatcher.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/change"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("poller already running")

const (
	defaultInterval      = 30 * time.Second
	shutdownNoticeBudget = 10 * time.Second

	verdictNew       = "new"
	verdictDuplicate = "duplicate"
)

// Acquirer produces the current candidate for a game type.
type Acquirer interface {
	AcquireCurrent(ctx context.Context, gt game.Type) (game.Candidate, bool)
	Close() error
}

// Notifier fans messages out to the configured channels.
type Notifier interface {
	DispatchNewResult(ctx context.Context, gt game.Type, c game.Candidate) []notify.Outcome
	DispatchSystemEvent(ctx context.Context, body string, severity notify.Severity) []notify.Outcome
}

// Config controls loop timing and which games are polled.
type Config struct {
	Interval time.Duration
	// Games restricts polling to a subset of the catalogue. Order always
	// follows the catalogue.
	Games []game.Type
	// AnnounceLifecycle sends "started" and "stopped" system events.
	AnnounceLifecycle bool
}

// Poller is the supervisor loop.
type Poller struct {
	cfg      Config
	games    []game.Type
	acquirer Acquirer
	detector *change.Detector
	store    game.Store
	notifier Notifier
	archive  *Archive
	logger   *zap.Logger

	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneOnce sync.Once
	done     chan struct{}
}

// Option customises a Poller.
type Option func(*Poller)

// WithArchive enables snapshot archiving of confirmed-new results.
func WithArchive(a *Archive) Option {
	return func(p *Poller) { p.archive = a }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New wires a Poller.
func New(cfg Config, acquirer Acquirer, store game.Store, notifier Notifier, opts ...Option) (*Poller, error) {
	if acquirer == nil {
		return nil, errors.New("acquirer is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	games, err := orderedGames(cfg.Games)
	if err != nil {
		return nil, err
	}
	p := &Poller{
		cfg:      cfg,
		games:    games,
		acquirer: acquirer,
		detector: change.New(),
		store:    store,
		notifier: notifier,
		logger:   zap.NewNop(),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func orderedGames(subset []game.Type) ([]game.Type, error) {
	if len(subset) == 0 {
		return game.Types(), nil
	}
	want := make(map[game.Type]bool, len(subset))
	for _, gt := range subset {
		if _, ok := game.Lookup(gt); !ok {
			return nil, fmt.Errorf("%w: %q", game.ErrUnknownType, gt)
		}
		want[gt] = true
	}
	out := make([]game.Type, 0, len(want))
	for _, gt := range game.Types() {
		if want[gt] {
			out = append(out, gt)
		}
	}
	return out, nil
}

// Games returns the polled game types in processing order.
func (p *Poller) Games() []game.Type {
	return append([]game.Type(nil), p.games...)
}

// Detector exposes the change detector.
func (p *Poller) Detector() *change.Detector {
	return p.detector
}

// Running reports whether Run is active.
func (p *Poller) Running() bool {
	return p.running.Load() && !p.stopped.Load()
}

// Start runs the loop in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		if err := p.Run(ctx); err != nil {
			p.logger.Error("poller exited", zap.Error(err))
		}
	}()
}

// Stop asks the loop to exit after the current cycle and wakes it if it is
// sleeping. It does not wait; use Done for that.
func (p *Poller) Stop() {
	p.stopped.Store(true)
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Done is closed once Run has returned.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Run blocks until Stop is called or ctx is canceled. The acquirer is closed
// on exit.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.doneOnce.Do(func() { close(p.done) })
	defer func() {
		if err := p.acquirer.Close(); err != nil {
			p.logger.Error("close acquirer", zap.Error(err))
		}
	}()

	p.seed(ctx)
	p.logger.Info("poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("games", len(p.games)),
	)
	if p.cfg.AnnounceLifecycle {
		p.notifier.DispatchSystemEvent(ctx, startedMessage(p.games, p.cfg.Interval), notify.SeverityInfo)
	}

	for !p.stopped.Load() && ctx.Err() == nil {
		p.Cycle(ctx)
		metrics.ObservePollCycle()

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
		case <-p.stopCh:
		case <-timer.C:
		}
		timer.Stop()
	}

	p.logger.Info("poller stopped")
	if p.cfg.AnnounceLifecycle {
		noticeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownNoticeBudget)
		p.notifier.DispatchSystemEvent(noticeCtx, "⏹️ Game result crawler stopped", notify.SeverityWarning)
		cancel()
	}
	return nil
}

func startedMessage(games []game.Type, interval time.Duration) string {
	names := make([]string, 0, len(games))
	for _, gt := range games {
		def, _ := game.Lookup(gt)
		names = append(names, def.DisplayName)
	}
	return fmt.Sprintf("🚀 Game result crawler started\n\nGames: %v\nInterval: %s", names, interval)
}

// seed primes the detector with the newest stored fingerprint per game so a
// restart does not re-announce the last result.
func (p *Poller) seed(ctx context.Context) {
	for _, gt := range p.games {
		recs, err := p.store.Latest(ctx, gt, 1, 0)
		if err != nil {
			p.logger.Warn("seed detector", zap.String("game_type", gt.String()), zap.Error(err))
			continue
		}
		if len(recs) == 0 {
			continue
		}
		p.detector.Seed(gt, recs[0].Fingerprint)
		p.logger.Debug("detector seeded",
			zap.String("game_type", gt.String()),
			zap.String("result_md5", recs[0].Fingerprint),
		)
	}
}

// Cycle processes every game once, in catalogue order. Stop takes effect
// between cycles, not between games.
func (p *Poller) Cycle(ctx context.Context) {
	for _, gt := range p.games {
		if ctx.Err() != nil {
			return
		}
		p.ProcessGame(ctx, gt)
	}
}

// ProcessGame acquires, dedups, persists, archives and dispatches one game.
// It reports whether a new result was confirmed. Panics are logged and
// swallowed so one game cannot stop the loop.
func (p *Poller) ProcessGame(ctx context.Context, gt game.Type) (confirmed bool) {
	log := p.logger.With(zap.String("game_type", gt.String()))
	defer func() {
		if r := recover(); r != nil {
			log.Error("game processing panicked", zap.Any("panic", r))
		}
	}()

	c, ok := p.acquirer.AcquireCurrent(ctx, gt)
	if !ok {
		return false
	}
	previous, hadPrevious := p.detector.LastSeen(gt)
	if !p.detector.IsNew(gt, c) {
		metrics.ObserveResult(gt.String(), verdictDuplicate)
		log.Debug("result unchanged", zap.String("result_md5", c.Fingerprint))
		return false
	}
	metrics.ObserveResult(gt.String(), verdictNew)
	log.Info("new result",
		zap.String("result", c.Result),
		zap.String("session_id", c.SessionID),
		zap.String("result_md5", c.Fingerprint),
		zap.String("strategy", c.Strategy),
	)

	payload, err := c.Payload()
	if err != nil {
		log.Error("encode result", zap.Error(err))
		return true
	}
	if _, err := p.store.Save(ctx, gt, c.SessionID, c.Fingerprint, payload); err != nil {
		// roll back so the next poll retries the save
		p.detector.Revert(gt, c.Fingerprint, previous, hadPrevious)
		log.Error("persist result", zap.Error(err))
		return false
	}
	if p.archive != nil {
		p.archive.Put(ctx, c, payload)
	}
	p.notifier.DispatchNewResult(ctx, gt, c)
	return true
}

// CurrentResult performs a synchronous acquisition without touching the
// detector.
func (p *Poller) CurrentResult(ctx context.Context, gt game.Type) (game.Candidate, bool) {
	if _, ok := game.Lookup(gt); !ok {
		return game.Candidate{}, false
	}
	return p.acquirer.AcquireCurrent(ctx, gt)
}

// AllCurrentResults acquires every polled game. Failed acquisitions map to
// nil.
func (p *Poller) AllCurrentResults(ctx context.Context) map[game.Type]*game.Candidate {
	out := make(map[game.Type]*game.Candidate, len(p.games))
	for _, gt := range p.games {
		if c, ok := p.acquirer.AcquireCurrent(ctx, gt); ok {
			out[gt] = &c
			continue
		}
		out[gt] = nil
	}
	return out
}
