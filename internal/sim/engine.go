package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"tankersim/internal/logger"
)

// Engine drives the coordinator at a fixed cadence. One pass at a time: if a
// pass is still running when the next tick fires, that tick is dropped and a
// warning recorded. Ticks are never queued.
type Engine struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *slog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	ticksDropped metric.Int64Counter
}

// NewEngine creates the periodic driver. interval defaults to 30s.
func NewEngine(coordinator *Coordinator, interval time.Duration, log *slog.Logger) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	meter := otel.Meter("tankersim")
	dropped, _ := meter.Int64Counter("tankersim.ticks.dropped",
		metric.WithDescription("Ticks skipped because the previous pass was still running"))

	return &Engine{
		coordinator:  coordinator,
		interval:     interval,
		logger:       log,
		ticksDropped: dropped,
	}
}

// Run blocks until the context is cancelled, firing one simulation pass per
// tick. On shutdown it waits for the in-flight pass to drain before
// returning, so no snapshot/history pair is left half-written.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("simulation engine starting", "tick_interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	// First pass immediately rather than one interval in.
	e.launchPass(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping, draining in-flight pass")
			e.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			e.launchPass(ctx)
		}
	}
}

func (e *Engine) launchPass(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.ticksDropped.Add(ctx, 1)
		e.logger.Warn("previous pass still running, tick dropped")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.running.Store(false)

		tickID := uuid.NewString()
		log := logger.FromContext(logger.WithTickID(ctx, tickID), e.logger)

		start := time.Now()
		summary, err := e.coordinator.RunPass(logger.WithTickID(ctx, tickID))
		if err != nil && err != context.Canceled {
			log.Error("pass failed", "error", err)
			return
		}

		log.Info("pass complete",
			"processed", summary.Processed,
			"transitioned", summary.Transitioned,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}()
}
