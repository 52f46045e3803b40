// Package retrain decides when accumulated history justifies kicking the
// model pipeline. The pipeline itself is a black box behind the Trigger
// interface; this package only watches the event stream and the history
// volume. Missed events delay retraining at worst; the persisted history is
// the system of record.
package retrain

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"tankersim/internal/events"
)

// Trigger starts one retraining run. Implementations may take a long time;
// the scheduler never runs two triggers concurrently.
type Trigger interface {
	Retrain(ctx context.Context) error
}

// TriggerFunc adapts a function to the Trigger interface.
type TriggerFunc func(ctx context.Context) error

func (f TriggerFunc) Retrain(ctx context.Context) error { return f(ctx) }

// HistoryCounter is the slice of the store the scheduler needs.
type HistoryCounter interface {
	CountHistorySince(ctx context.Context, since time.Time) (int64, error)
}

// Config tunes the scheduler.
type Config struct {
	// Interval caps how often a retrain can fire. Default 1h.
	Interval time.Duration

	// MinSamples is the minimum number of new history records since the
	// last retrain before one is worth running. Default 50.
	MinSamples int64

	// InitialDelay lets data accumulate after startup before the first
	// attempt. Default 2m.
	InitialDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 50
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Minute
	}
}

// Scheduler consumes transition/update events and fires the trigger at most
// once per interval, and only once enough new history has accumulated.
type Scheduler struct {
	counter HistoryCounter
	trigger Trigger
	logger  *slog.Logger
	cfg     Config

	// limiter hands out at most one evaluation token per interval, so the
	// history count query runs at a bounded rate no matter how chatty the
	// event stream is.
	limiter *rate.Limiter

	lastTrained time.Time
}

// New creates a scheduler.
func New(counter HistoryCounter, trigger Trigger, logger *slog.Logger, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		counter: counter,
		trigger: trigger,
		logger:  logger,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
	}
}

// Run consumes the event channel until the context is cancelled or the
// channel closes. The channel may be lossy; a dropped event only delays the
// next evaluation until the following one arrives.
func (s *Scheduler) Run(ctx context.Context, eventCh <-chan events.Event) {
	s.logger.Info("retrain scheduler starting",
		"interval", s.cfg.Interval, "min_samples", s.cfg.MinSamples)

	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.InitialDelay):
	}

	s.lastTrained = time.Now().Add(-s.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-eventCh:
			if !ok {
				return
			}
			s.maybeRetrain(ctx)
		}
	}
}

func (s *Scheduler) maybeRetrain(ctx context.Context) {
	if !s.limiter.Allow() {
		return
	}

	count, err := s.counter.CountHistorySince(ctx, s.lastTrained)
	if err != nil {
		s.logger.Warn("failed to count history, skipping retrain check", "error", err)
		return
	}
	if count < s.cfg.MinSamples {
		s.logger.Debug("not enough new samples, retrain deferred",
			"count", count, "min_samples", s.cfg.MinSamples)
		return
	}

	s.logger.Info("starting model retraining", "new_samples", count)
	if err := s.trigger.Retrain(ctx); err != nil {
		s.logger.Error("retraining failed", "error", err)
		return
	}
	s.lastTrained = time.Now()
	s.logger.Info("retraining complete")
}
