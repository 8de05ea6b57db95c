// Package worker delivers result notifications in the background so a slow
// channel never stalls the poll loop. Channels that fail are retried with
// exponential backoff.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
	"github.com/JakeFAU/gameresult-crawler/internal/queue"
)

// maxBackoff caps the delay between retries.
const maxBackoff = time.Minute

// Deliverer is the synchronous notification path the pool drives.
type Deliverer interface {
	NewJob(gt game.Type, c game.Candidate) notify.Job
	Deliver(ctx context.Context, job notify.Job) []notify.Outcome
	DispatchSystemEvent(ctx context.Context, body string, severity notify.Severity) []notify.Outcome
}

// Config controls Pool behavior.
type Config struct {
	Workers          int
	QueueSize        int
	MaxAttempts      int
	RetryBackoffBase time.Duration
	DrainTimeout     time.Duration
}

// Pool consumes notification jobs from a bounded queue.
type Pool struct {
	cfg       Config
	queue     *queue.Queue[notify.Job]
	deliverer Deliverer
	logger    *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Pool. Call Start to launch the workers.
func New(cfg Config, deliverer Deliverer, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:       cfg,
		queue:     queue.New[notify.Job](cfg.QueueSize),
		deliverer: deliverer,
		logger:    logger,
	}
}

// Start launches the workers. Their lifetime is bound to Close, not to ctx,
// so queued announcements survive the poll loop being canceled.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.run(workCtx, id)
		}(i)
	}
}

// DispatchNewResult queues the announcement and returns immediately. When the
// queue is full the job is delivered inline instead of being dropped.
func (p *Pool) DispatchNewResult(ctx context.Context, gt game.Type, c game.Candidate) []notify.Outcome {
	job := p.deliverer.NewJob(gt, c)
	if len(job.Channels) == 0 {
		return nil
	}
	if p.queue.TryEnqueue(job) {
		metrics.ObserveOutboxDepth(p.Pending())
		return nil
	}
	p.logger.Warn("notification queue full; delivering inline",
		zap.String("game_type", gt.String()),
		zap.String("result_md5", job.Fingerprint),
	)
	return p.process(ctx, job)
}

// DispatchSystemEvent is delivered synchronously.
func (p *Pool) DispatchSystemEvent(ctx context.Context, body string, severity notify.Severity) []notify.Outcome {
	return p.deliverer.DispatchSystemEvent(ctx, body, severity)
}

// Pending reports how many jobs are waiting. The same figure is exported as
// crawler_outbox_pending.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Close stops intake and waits for queued jobs to be delivered, up to the
// drain timeout. Remaining retries are abandoned after that.
func (p *Pool) Close() error {
	p.queue.Close()

	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()
	if !started {
		ctx, stop := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
		defer stop()
		p.run(ctx, 0)
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
		cancel()
		return nil
	case <-timer.C:
		cancel()
		<-done
		return errors.New("notification queue not drained before timeout")
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrClosed) {
				p.logger.Debug("worker stopping", zap.Int("worker", id), zap.Error(err))
			}
			return
		}
		metrics.ObserveOutboxDepth(p.Pending())
		p.process(ctx, job)
	}
}

// process delivers job, retrying only the channels that failed.
func (p *Pool) process(ctx context.Context, job notify.Job) []notify.Outcome {
	var all []notify.Outcome
	for attempt := 1; ; attempt++ {
		outcomes := p.deliverer.Deliver(ctx, job)
		all = append(all, outcomes...)
		failed := failedChannels(outcomes)
		if len(failed) == 0 {
			return all
		}
		if attempt >= p.cfg.MaxAttempts {
			p.logger.Error("notification delivery exhausted",
				zap.String("game_type", job.GameType.String()),
				zap.String("result_md5", job.Fingerprint),
				zap.Strings("channels", failed),
				zap.Int("attempts", attempt),
			)
			return all
		}
		backoff := p.cfg.RetryBackoffBase << (attempt - 1)
		if backoff <= 0 || backoff > maxBackoff {
			backoff = maxBackoff
		}
		p.logger.Warn("retrying notification",
			zap.String("game_type", job.GameType.String()),
			zap.Strings("channels", failed),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
		)
		job.Channels = failed
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return all
		case <-timer.C:
		}
	}
}

func failedChannels(outcomes []notify.Outcome) []string {
	var failed []string
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Channel)
		}
	}
	return failed
}
