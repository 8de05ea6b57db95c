package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/clock/system"
	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
)

// Outcome is the result of one channel delivery.
type Outcome struct {
	Channel  string
	Err      error
	Duration time.Duration
}

// Config controls dispatcher behavior.
type Config struct {
	// Timeout bounds each channel delivery.
	Timeout time.Duration
	// APIPrefix is quoted in result announcements.
	APIPrefix string
}

// Dispatcher delivers messages to channels.
type Dispatcher struct {
	cfg      Config
	channels []Channel
	clock    game.Clock
	logger   *zap.Logger
}

// NewDispatcher builds a Dispatcher over channels.
func NewDispatcher(cfg Config, channels []Channel, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, channels: channels, clock: system.New(), logger: logger}
}

// Configured lists the names of channels that will be attempted.
func (d *Dispatcher) Configured() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		if ch.Configured() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// NewJob snapshots a confirmed result together with the channels it is bound for.
func (d *Dispatcher) NewJob(gt game.Type, c game.Candidate) Job {
	return Job{GameType: gt, Result: c, Fingerprint: c.Fingerprint, Channels: d.Configured()}
}

// DispatchNewResult announces a confirmed-new result on every configured channel.
func (d *Dispatcher) DispatchNewResult(ctx context.Context, gt game.Type, c game.Candidate) []Outcome {
	return d.Deliver(ctx, d.NewJob(gt, c))
}

// Deliver sends job to the channels it names.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) []Outcome {
	def, ok := game.Lookup(job.GameType)
	if !ok {
		def = game.Definition{Type: job.GameType}
	}
	result := job.Result
	result.Fingerprint = job.Fingerprint
	msg := Message{
		Kind:      KindResult,
		Subject:   fmt.Sprintf("New %s Result", strings.ToUpper(job.GameType.String())),
		Text:      FormatResult(def, result, d.cfg.APIPrefix),
		GameType:  job.GameType,
		Result:    &result,
		Timestamp: d.clock.Now(),
	}
	return d.fanout(ctx, msg, job.Channels)
}

// DispatchSystemEvent sends an operational message on every configured channel.
func (d *Dispatcher) DispatchSystemEvent(ctx context.Context, body string, severity Severity) []Outcome {
	if severity == "" {
		severity = SeverityInfo
	}
	msg := Message{
		Kind:      KindSystem,
		Subject:   fmt.Sprintf("System %s", strings.ToUpper(string(severity))),
		Text:      FormatSystem(body, severity),
		Severity:  severity,
		Body:      body,
		Timestamp: d.clock.Now(),
	}
	return d.fanout(ctx, msg, d.Configured())
}

// SendTest sends the configuration test notification.
func (d *Dispatcher) SendTest(ctx context.Context) []Outcome {
	return d.DispatchSystemEvent(ctx, TestBody, SeverityTest)
}

func (d *Dispatcher) fanout(ctx context.Context, msg Message, names []string) []Outcome {
	targets := d.channelsFor(names)
	if len(targets) == 0 {
		d.logger.Debug("no notification channels configured", zap.String("kind", string(msg.Kind)))
		return nil
	}

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, ch := range targets {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			outcomes[i] = d.deliver(ctx, ch, msg)
		}(i, ch)
	}
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) channelsFor(names []string) []Channel {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make([]Channel, 0, len(names))
	for _, ch := range d.channels {
		if _, ok := want[ch.Name()]; ok && ch.Configured() {
			out = append(out, ch)
		}
	}
	return out
}

func (d *Dispatcher) deliver(parent context.Context, ch Channel, msg Message) (out Outcome) {
	ctx, cancel := context.WithTimeout(parent, d.cfg.Timeout)
	defer cancel()
	start := time.Now()
	out.Channel = ch.Name()

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("channel %s panicked: %v", ch.Name(), r)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			metrics.ObserveNotification(ch.Name(), string(msg.Kind), metrics.OutcomeFailure)
			d.logger.Error("notification failed",
				zap.String("channel", ch.Name()),
				zap.String("kind", string(msg.Kind)),
				zap.Error(out.Err),
			)
			return
		}
		metrics.ObserveNotification(ch.Name(), string(msg.Kind), metrics.OutcomeSuccess)
		d.logger.Info("notification sent",
			zap.String("channel", ch.Name()),
			zap.String("kind", string(msg.Kind)),
			zap.Duration("duration", out.Duration),
		)
	}()

	out.Err = ch.Send(ctx, msg)
	return out
}
