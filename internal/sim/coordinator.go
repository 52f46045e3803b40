package sim

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"tankersim/internal/events"
	"tankersim/internal/store"
)

// CoordinatorConfig tunes one simulation pass.
type CoordinatorConfig struct {
	// WorkerPoolSize bounds per-tanker concurrency within a pass, capping
	// database connection usage. Default 8.
	WorkerPoolSize int

	// CommitTimeout bounds each per-tanker load+commit. Default 5s.
	CommitTimeout time.Duration

	// DormantAfter skips tankers whose snapshot is older than this.
	// Zero disables the check.
	DormantAfter time.Duration

	// Seed makes runs reproducible. Zero seeds from the wall clock.
	Seed int64
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 8
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = 5 * time.Second
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
}

// Summary aggregates what one pass did, for the per-tick log line and metrics.
type Summary struct {
	Processed    int
	Transitioned int
	Skipped      int
	Failed       int
}

// Coordinator orchestrates one simulation pass over the fleet: per tanker it
// synthesizes telemetry, evaluates the transition policy and commits the
// snapshot update plus history append as one unit, then emits one event.
type Coordinator struct {
	store   store.FleetStore
	synth   *Synthesizer
	policy  *Policy
	emitter events.Emitter
	logger  *slog.Logger
	cfg     CoordinatorConfig

	now func() time.Time

	passSeq uint64
	tracer  trace.Tracer

	processedCtr    metric.Int64Counter
	transitionedCtr metric.Int64Counter
	skippedCtr      metric.Int64Counter
	failedCtr       metric.Int64Counter
}

// NewCoordinator wires a coordinator. emitter may be nil, in which case
// events are discarded.
func NewCoordinator(fleet store.FleetStore, synth *Synthesizer, policy *Policy, emitter events.Emitter, logger *slog.Logger, cfg CoordinatorConfig) *Coordinator {
	cfg.applyDefaults()
	if emitter == nil {
		emitter = events.Nop{}
	}

	meter := otel.Meter("tankersim")
	processed, _ := meter.Int64Counter("tankersim.pass.processed",
		metric.WithDescription("Tankers committed per pass"))
	transitioned, _ := meter.Int64Counter("tankersim.pass.transitioned",
		metric.WithDescription("Tankers that changed status per pass"))
	skipped, _ := meter.Int64Counter("tankersim.pass.skipped",
		metric.WithDescription("Tankers skipped per pass (conflict, dormant, data quality)"))
	failed, _ := meter.Int64Counter("tankersim.pass.failed",
		metric.WithDescription("Tankers that failed with a storage error per pass"))

	return &Coordinator{
		store:           fleet,
		synth:           synth,
		policy:          policy,
		emitter:         emitter,
		logger:          logger,
		cfg:             cfg,
		now:             time.Now,
		tracer:          otel.Tracer("lifecycle-coordinator"),
		processedCtr:    processed,
		transitionedCtr: transitioned,
		skippedCtr:      skipped,
		failedCtr:       failed,
	}
}

type outcome int

const (
	outcomeCommitted outcome = iota
	outcomeTransitioned
	outcomeSkipped
	outcomeFailed
)

// RunPass executes one simulation pass over all tankers using a bounded
// worker pool. Per-tanker failures are recovered locally; the pass itself
// only fails when the fleet cannot be enumerated.
func (c *Coordinator) RunPass(ctx context.Context) (Summary, error) {
	c.passSeq++
	pass := c.passSeq

	ids, err := c.store.ListTankerIDs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to enumerate fleet: %w", err)
	}

	sem := make(chan struct{}, c.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var summary Summary

	for _, id := range ids {
		select {
		case <-ctx.Done():
			// Stop dispatching; in-flight tankers drain below.
			wg.Wait()
			return summary, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(tankerID string) {
			defer wg.Done()
			defer func() { <-sem }()

			out := c.processTanker(ctx, tankerID, pass)

			mu.Lock()
			switch out {
			case outcomeCommitted:
				summary.Processed++
			case outcomeTransitioned:
				summary.Processed++
				summary.Transitioned++
			case outcomeSkipped:
				summary.Skipped++
			case outcomeFailed:
				summary.Failed++
			}
			mu.Unlock()
		}(id)
	}

	wg.Wait()

	c.processedCtr.Add(ctx, int64(summary.Processed))
	c.transitionedCtr.Add(ctx, int64(summary.Transitioned))
	c.skippedCtr.Add(ctx, int64(summary.Skipped))
	c.failedCtr.Add(ctx, int64(summary.Failed))

	return summary, nil
}

// processTanker runs the load → synthesize → decide → commit → emit chain
// for one tanker. On an optimistic-concurrency loss it re-reads once and
// retries; a second loss skips the tanker until the next tick.
func (c *Coordinator) processTanker(ctx context.Context, tankerID string, pass uint64) outcome {
	spanCtx, span := c.tracer.Start(ctx, "process_tanker",
		trace.WithAttributes(attribute.String("tanker.id", tankerID)))
	defer span.End()

	rng := c.rngFor(tankerID, pass)

	out, err := c.attemptCommit(spanCtx, tankerID, rng)
	if errors.Is(err, store.ErrConflict) {
		// Someone updated the snapshot between our read and write. One
		// fresh-read retry keeps tick latency bounded.
		out, err = c.attemptCommit(spanCtx, tankerID, rng)
		if errors.Is(err, store.ErrConflict) {
			c.logger.Warn("commit conflict, skipping until next tick", "tanker_id", tankerID)
			return outcomeSkipped
		}
	}

	switch {
	case err == nil:
		return out
	case errors.Is(err, store.ErrNotFound):
		c.logger.Warn("tanker vanished during pass", "tanker_id", tankerID)
		return outcomeSkipped
	case errors.Is(err, ErrInvalidState):
		c.logger.Warn("invalid lifecycle state, skipping", "tanker_id", tankerID, "error", err)
		return outcomeSkipped
	case errors.Is(err, errDormant):
		c.logger.Debug("dormant tanker skipped", "tanker_id", tankerID)
		return outcomeSkipped
	default:
		span.RecordError(err)
		c.logger.Error("failed to process tanker", "tanker_id", tankerID, "error", err)
		return outcomeFailed
	}
}

var errDormant = errors.New("tanker dormant")

func (c *Coordinator) attemptCommit(ctx context.Context, tankerID string, rng *rand.Rand) (outcome, error) {
	loadCtx, cancelLoad := context.WithTimeout(ctx, c.cfg.CommitTimeout)
	snap, err := c.store.LoadSnapshot(loadCtx, tankerID)
	cancelLoad()
	if err != nil {
		return outcomeSkipped, err
	}

	now := c.now()

	if c.cfg.DormantAfter > 0 && !snap.LastUpdate.IsZero() &&
		now.Sub(snap.LastUpdate) > c.cfg.DormantAfter {
		return outcomeSkipped, errDormant
	}

	elapsed := now.Sub(snap.LastUpdate)
	if snap.LastUpdate.IsZero() || elapsed < 0 {
		elapsed = 0
	}

	telemetry := c.synth.Next(snap, elapsed, rng)

	decision, err := c.policy.Evaluate(ctx, snap, now, rng)
	if err != nil {
		return outcomeSkipped, err
	}
	if decision.DataQuality {
		c.logger.Warn("malformed status_changed_at, telemetry-only update",
			"tanker_id", tankerID, "status_changed_at", snap.StatusChangedAt)
	}

	updated := *snap
	updated.Lat = telemetry.Lat
	updated.Lon = telemetry.Lon
	updated.AvgSpeedKmh = telemetry.AvgSpeedKmh
	updated.OilVolumeLiters = telemetry.OilVolumeLiters
	updated.TripDurationHours = telemetry.TripDurationHours
	updated.LastUpdate = now

	if decision.Transition {
		applyTransition(&updated, decision.Next, now)
	}

	record := store.HistoryFromSnapshot(&updated)

	// The commit context is detached from the pass context so that a
	// shutdown lets in-flight commits finish (bounded by the timeout)
	// instead of tearing a snapshot/history pair.
	commitCtx, cancelCommit := context.WithTimeout(context.Background(), c.cfg.CommitTimeout)
	defer cancelCommit()

	if err := c.store.Commit(commitCtx, &updated, record); err != nil {
		return outcomeSkipped, err
	}

	event := events.Event{
		TankerID:       tankerID,
		PreviousStatus: snap.Status,
		Timestamp:      updated.LastUpdate,
	}
	out := outcomeCommitted
	if decision.Transition {
		next := decision.Next
		event.NewStatus = &next
		out = outcomeTransitioned
		c.logger.Info("status transition",
			"tanker_id", tankerID, "from", snap.Status, "to", decision.Next)
	}
	c.emitter.Emit(ctx, event)

	return out, nil
}

// applyTransition moves the snapshot into its next lifecycle state: status,
// status_changed_at, seal, and position snapping to the destination on
// arrival and back to the depot when the cycle restarts.
func applyTransition(snap *store.Tanker, next store.Status, now time.Time) {
	snap.Status = next
	snap.StatusChangedAt = now
	snap.Seal = sealFor(next)

	switch next {
	case store.StatusReachedDestination:
		if snap.Destination != nil {
			lat, lon := snap.Destination.Lat, snap.Destination.Lon
			snap.Lat = &lat
			snap.Lon = &lon
		}
		snap.AvgSpeedKmh = 0
	case store.StatusAtSource:
		if snap.SourceDepot != nil {
			lat, lon := snap.SourceDepot.Lat, snap.SourceDepot.Lon
			snap.Lat = &lat
			snap.Lon = &lon
		}
		snap.TripDurationHours = 0
		snap.AvgSpeedKmh = 0
	case store.StatusDelayed:
		snap.AvgSpeedKmh = 0
	}
}

// rngFor derives a deterministic per-tanker random source. Workers never
// share RNG state, so a fixed seed reproduces identical decisions regardless
// of scheduling order.
func (c *Coordinator) rngFor(tankerID string, pass uint64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(tankerID))
	seed := c.cfg.Seed ^ int64(h.Sum64()) ^ int64(pass*0x9e3779b97f4a7c15)
	return rand.New(rand.NewSource(seed))
}
