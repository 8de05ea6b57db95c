// Package acquire runs the ordered list of acquisition strategies for a game
// type and stops at the first one that produces a candidate.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/game"
	"github.com/JakeFAU/gameresult-crawler/internal/metrics"
	"github.com/JakeFAU/gameresult-crawler/internal/telemetry"
)

// Step pairs a strategy with the deadline applied to each of its attempts.
type Step struct {
	Strategy game.Strategy
	Timeout  time.Duration
}

// Coordinator tries strategies in declared order.
type Coordinator struct {
	steps  []Step
	logger *zap.Logger
}

// New builds a Coordinator. Steps without a timeout get defaultTimeout.
func New(steps []Step, defaultTimeout time.Duration, logger *zap.Logger) (*Coordinator, error) {
	if len(steps) == 0 {
		return nil, errors.New("at least one strategy is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make([]Step, 0, len(steps))
	for i, step := range steps {
		if step.Strategy == nil {
			return nil, fmt.Errorf("strategy %d is nil", i)
		}
		if step.Timeout <= 0 {
			step.Timeout = defaultTimeout
		}
		out = append(out, step)
	}
	return &Coordinator{steps: out, logger: logger}, nil
}

// Strategies returns the strategy names in order.
func (c *Coordinator) Strategies() []string {
	names := make([]string, 0, len(c.steps))
	for _, step := range c.steps {
		names = append(names, step.Strategy.Name())
	}
	return names
}

// AcquireCurrent returns the first candidate any strategy produces for gt.
// Failures are logged, never returned; ok is false only when every strategy
// failed.
func (c *Coordinator) AcquireCurrent(ctx context.Context, gt game.Type) (game.Candidate, bool) {
	def, found := game.Lookup(gt)
	if !found {
		c.logger.Error("unknown game type", zap.String("game_type", gt.String()))
		return game.Candidate{}, false
	}

	start := time.Now()
	for _, step := range c.steps {
		if ctx.Err() != nil {
			break
		}
		candidate, err := c.attempt(ctx, step, def)
		if err == nil {
			candidate.Strategy = step.Strategy.Name()
			metrics.ObserveAcquisition(gt.String(), metrics.OutcomeSuccess, time.Since(start))
			c.logger.Info("acquired result",
				zap.String("game_type", gt.String()),
				zap.String("strategy", step.Strategy.Name()),
				zap.String("result_md5", candidate.Fingerprint),
			)
			return candidate, true
		}
		c.logger.Warn("strategy failed",
			zap.String("game_type", gt.String()),
			zap.String("strategy", step.Strategy.Name()),
			zap.Error(err),
		)
	}

	metrics.ObserveAcquisition(gt.String(), metrics.OutcomeFailure, time.Since(start))
	c.logger.Error("all strategies failed", zap.String("game_type", gt.String()))
	return game.Candidate{}, false
}

func (c *Coordinator) attempt(ctx context.Context, step Step, def game.Definition) (candidate game.Candidate, err error) {
	name := step.Strategy.Name()
	ctx, span := telemetry.Tracer().Start(ctx, "acquire."+name)
	span.SetAttributes(
		attribute.String("game_type", def.Type.String()),
		attribute.String("strategy", name),
	)
	ctx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer func() {
		cancel()
		outcome := metrics.OutcomeSuccess
		switch {
		case errors.Is(err, game.ErrBlocked):
			outcome = metrics.OutcomeBlocked
		case errors.Is(err, game.ErrNeedsBrowser):
			outcome = metrics.OutcomeBrowser
		case errors.Is(err, game.ErrNoCandidate):
			outcome = metrics.OutcomeMiss
		case err != nil:
			outcome = metrics.OutcomeFailure
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		metrics.ObserveStrategyAttempt(name, def.Type.String(), outcome)
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", name, r)
		}
	}()

	candidate, err = step.Strategy.Attempt(ctx, def)
	if err == nil && candidate.GameType == "" {
		candidate.GameType = def.Type
	}
	return candidate, err
}

// Close releases every strategy that holds resources.
func (c *Coordinator) Close() error {
	var errs []error
	for _, step := range c.steps {
		closer, ok := step.Strategy.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", step.Strategy.Name(), err))
		}
	}
	return errors.Join(errs...)
}
