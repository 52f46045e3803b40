package sim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tankersim/internal/events"
	"tankersim/internal/store"
)

// fakeFleetStore is an in-memory FleetStore with programmable failures.
type fakeFleetStore struct {
	mu        sync.Mutex
	snapshots map[string]*store.Tanker
	history   []store.HistoryRecord

	listErr error
	loadErr map[string]error

	// conflictsLeft[id] makes the next N commits for that tanker lose the
	// version race.
	conflictsLeft map[string]int
	commitErr     map[string]error
	commits       int
}

func newFakeFleetStore(tankers ...*store.Tanker) *fakeFleetStore {
	f := &fakeFleetStore{
		snapshots:     make(map[string]*store.Tanker),
		loadErr:       make(map[string]error),
		conflictsLeft: make(map[string]int),
		commitErr:     make(map[string]error),
	}
	for _, t := range tankers {
		f.snapshots[t.TankerID] = t
	}
	return f
}

func (f *fakeFleetStore) ListTankerIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.snapshots))
	for id := range f.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeFleetStore) LoadSnapshot(ctx context.Context, tankerID string) (*store.Tanker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadErr[tankerID]; err != nil {
		return nil, err
	}
	snap, ok := f.snapshots[tankerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (f *fakeFleetStore) Commit(ctx context.Context, snapshot *store.Tanker, record *store.HistoryRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commitErr[snapshot.TankerID]; err != nil {
		return err
	}
	if f.conflictsLeft[snapshot.TankerID] > 0 {
		f.conflictsLeft[snapshot.TankerID]--
		return store.ErrConflict
	}
	current, ok := f.snapshots[snapshot.TankerID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != snapshot.Version {
		return store.ErrConflict
	}
	cp := *snapshot
	cp.Version++
	f.snapshots[snapshot.TankerID] = &cp
	f.history = append(f.history, *record)
	f.commits++
	return nil
}

func (f *fakeFleetStore) ListSnapshots(ctx context.Context) ([]store.Tanker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Tanker, 0, len(f.snapshots))
	for _, t := range f.snapshots {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeFleetStore) ListHistory(ctx context.Context, tankerID string, limit int) ([]store.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.HistoryRecord
	for i := len(f.history) - 1; i >= 0 && len(out) < limit; i-- {
		if f.history[i].TankerID == tankerID {
			out = append(out, f.history[i])
		}
	}
	return out, nil
}

func (f *fakeFleetStore) CountHistorySince(ctx context.Context, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.history {
		if !r.RecordedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// captureEmitter records every emitted event.
type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(ctx context.Context, e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

func testTanker(id string, status store.Status, inStatus time.Duration, now time.Time) *store.Tanker {
	lat, lon := 40.7658, 29.9409
	return &store.Tanker{
		TankerID:          id,
		Status:            status,
		Lat:               &lat,
		Lon:               &lon,
		SourceDepot:       &store.Location{ID: 1, Name: "Izmit Refinery", Lat: 40.7658, Lon: 29.9409},
		Destination:       &store.Location{ID: 2, Name: "Ankara Terminal", Lat: 39.9334, Lon: 32.8597},
		Seal:              sealFor(status),
		OilVolumeLiters:   25000,
		MaxCapacityLiters: 30000,
		AvgSpeedKmh:       70,
		StatusChangedAt:   now.Add(-inStatus),
		LastUpdate:        now.Add(-30 * time.Second),
		Version:           1,
	}
}

func newTestCoordinator(fleet store.FleetStore, emitter events.Emitter, now time.Time) *Coordinator {
	c := NewCoordinator(
		fleet,
		NewSynthesizer(TelemetryConfig{}),
		NewPolicy(PolicyConfig{DelayProbability: 0}),
		emitter,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		CoordinatorConfig{Seed: 1},
	)
	c.now = func() time.Time { return now }
	return c
}

func TestRunPass_DueTankerTransitions(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-001", store.StatusInTransit, 5*time.Hour+time.Minute, now))
	emitter := &captureEmitter{}
	c := newTestCoordinator(fleet, emitter, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Transitioned != 1 {
		t.Errorf("expected 1 processed / 1 transitioned, got %+v", summary)
	}

	snap, _ := fleet.LoadSnapshot(context.Background(), "TNK-001")
	if snap.Status != store.StatusReachedDestination {
		t.Errorf("expected status %q, got %q", store.StatusReachedDestination, snap.Status)
	}
	if snap.Seal != store.SealSealed {
		t.Errorf("arrived cargo should stay sealed, got %q", snap.Seal)
	}
	if snap.StatusChangedAt != now {
		t.Errorf("status_changed_at should be the pass time, got %v", snap.StatusChangedAt)
	}
	if snap.Version != 2 {
		t.Errorf("commit should bump version to 2, got %d", snap.Version)
	}

	evts := emitter.all()
	if len(evts) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(evts))
	}
	if !evts[0].Transitioned() || *evts[0].NewStatus != store.StatusReachedDestination {
		t.Errorf("event should carry the transition, got %+v", evts[0])
	}
}

func TestRunPass_NotDueTankerGetsTelemetryOnly(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-002", store.StatusAtSource, 10*time.Minute, now))
	emitter := &captureEmitter{}
	c := newTestCoordinator(fleet, emitter, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Transitioned != 0 {
		t.Errorf("expected 1 processed / 0 transitioned, got %+v", summary)
	}

	snap, _ := fleet.LoadSnapshot(context.Background(), "TNK-002")
	if snap.Status != store.StatusAtSource {
		t.Errorf("status should not change, got %q", snap.Status)
	}
	if snap.LastUpdate != now {
		t.Errorf("last_update should advance to the pass time, got %v", snap.LastUpdate)
	}

	evts := emitter.all()
	if len(evts) != 1 {
		t.Fatalf("expected one telemetry event, got %d", len(evts))
	}
	if evts[0].Transitioned() {
		t.Errorf("telemetry-only event should carry no new status, got %+v", evts[0])
	}
}

func TestRunPass_ConflictRetriesOnceThenSucceeds(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-003", store.StatusAtSource, 10*time.Minute, now))
	fleet.conflictsLeft["TNK-003"] = 1
	emitter := &captureEmitter{}
	c := newTestCoordinator(fleet, emitter, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 {
		t.Errorf("one conflict should be absorbed by the retry, got %+v", summary)
	}
	if len(emitter.all()) != 1 {
		t.Errorf("expected one event after the retry, got %d", len(emitter.all()))
	}
}

func TestRunPass_PersistentConflictSkipsWithoutSideEffects(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-003", store.StatusAtSource, 10*time.Minute, now))
	fleet.conflictsLeft["TNK-003"] = 2
	emitter := &captureEmitter{}
	c := newTestCoordinator(fleet, emitter, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 || summary.Failed != 0 {
		t.Errorf("a persistent conflict is a skip, not a failure: %+v", summary)
	}
	if len(fleet.history) != 0 {
		t.Errorf("no history should be written on conflict, got %d records", len(fleet.history))
	}
	if len(emitter.all()) != 0 {
		t.Errorf("no event should fire on conflict, got %d", len(emitter.all()))
	}
}

func TestRunPass_FailureIsolatedPerTanker(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(
		testTanker("TNK-001", store.StatusAtSource, 10*time.Minute, now),
		testTanker("TNK-002", store.StatusLoading, 5*time.Minute, now),
	)
	fleet.commitErr["TNK-001"] = errors.New("connection reset")
	emitter := &captureEmitter{}
	c := newTestCoordinator(fleet, emitter, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("a per-tanker failure must not fail the pass: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 1 {
		t.Errorf("expected 1 failed / 1 processed, got %+v", summary)
	}
}

func TestRunPass_VanishedTankerSkipped(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-001", store.StatusAtSource, 10*time.Minute, now))
	fleet.loadErr["TNK-001"] = store.ErrNotFound
	c := newTestCoordinator(fleet, &captureEmitter{}, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Failed != 0 {
		t.Errorf("a vanished tanker is a skip, got %+v", summary)
	}
}

func TestRunPass_InvalidStatusSkipped(t *testing.T) {
	now := time.Now()
	bad := testTanker("TNK-009", store.Status("Teleporting"), time.Hour, now)
	fleet := newFakeFleetStore(bad)
	c := newTestCoordinator(fleet, &captureEmitter{}, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("invalid state is a skip, got %+v", summary)
	}
	if len(fleet.history) != 0 {
		t.Errorf("no history should be written for an invalid state")
	}
}

func TestRunPass_MalformedTimestampCommitsTelemetryOnly(t *testing.T) {
	now := time.Now()
	snap := testTanker("TNK-010", store.StatusInTransit, time.Hour, now)
	snap.StatusChangedAt = time.Time{}
	fleet := newFakeFleetStore(snap)
	c := newTestCoordinator(fleet, &captureEmitter{}, now)

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Processed != 1 || summary.Transitioned != 0 {
		t.Errorf("malformed timestamp should yield a telemetry-only commit, got %+v", summary)
	}

	got, _ := fleet.LoadSnapshot(context.Background(), "TNK-010")
	if got.Status != store.StatusInTransit {
		t.Errorf("status must not change on malformed timestamps, got %q", got.Status)
	}
}

func TestRunPass_DormantTankerSkipped(t *testing.T) {
	now := time.Now()
	stale := testTanker("TNK-011", store.StatusAtSource, 2*time.Hour, now)
	stale.LastUpdate = now.Add(-48 * time.Hour)
	fleet := newFakeFleetStore(stale)

	c := NewCoordinator(
		fleet,
		NewSynthesizer(TelemetryConfig{}),
		NewPolicy(PolicyConfig{}),
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		CoordinatorConfig{Seed: 1, DormantAfter: 24 * time.Hour},
	)
	c.now = func() time.Time { return now }

	summary, err := c.RunPass(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Errorf("dormant tanker should be skipped, got %+v", summary)
	}
}

func TestRunPass_HistoryMatchesSnapshot(t *testing.T) {
	now := time.Now()
	fleet := newFakeFleetStore(testTanker("TNK-001", store.StatusLoading, 20*time.Minute, now))
	c := newTestCoordinator(fleet, nil, now)

	if _, err := c.RunPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, _ := fleet.LoadSnapshot(context.Background(), "TNK-001")
	if len(fleet.history) != 1 {
		t.Fatalf("expected one history record, got %d", len(fleet.history))
	}
	rec := fleet.history[0]

	if rec.Status != snap.Status {
		t.Errorf("history status %q != snapshot status %q", rec.Status, snap.Status)
	}
	if rec.OilVolumeLiters != snap.OilVolumeLiters {
		t.Errorf("history volume %v != snapshot volume %v", rec.OilVolumeLiters, snap.OilVolumeLiters)
	}
	if rec.Seal != snap.Seal {
		t.Errorf("history seal %q != snapshot seal %q", rec.Seal, snap.Seal)
	}
	if !rec.RecordedAt.Equal(snap.LastUpdate) {
		t.Errorf("history recorded_at %v != snapshot last_update %v", rec.RecordedAt, snap.LastUpdate)
	}
}

func TestRunPass_ReturnTripResetsTripDuration(t *testing.T) {
	now := time.Now()
	snap := testTanker("TNK-001", store.StatusUnloading, time.Hour, now)
	snap.TripDurationHours = 6.5
	fleet := newFakeFleetStore(snap)
	c := newTestCoordinator(fleet, nil, now)

	if _, err := c.RunPass(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := fleet.LoadSnapshot(context.Background(), "TNK-001")
	if got.Status != store.StatusAtSource {
		t.Fatalf("expected return to %q, got %q", store.StatusAtSource, got.Status)
	}
	if got.TripDurationHours != 0 {
		t.Errorf("trip duration should reset on return, got %v", got.TripDurationHours)
	}
	if got.Lat == nil || *got.Lat != snap.SourceDepot.Lat {
		t.Errorf("position should snap back to the depot")
	}
	if got.Seal != store.SealOpen {
		t.Errorf("seal should open at the source, got %q", got.Seal)
	}
}

func TestRunPass_EnumerationFailureFailsPass(t *testing.T) {
	fleet := newFakeFleetStore()
	fleet.listErr = errors.New("connection refused")
	c := newTestCoordinator(fleet, nil, time.Now())

	if _, err := c.RunPass(context.Background()); err == nil {
		t.Fatal("expected pass to fail when the fleet cannot be enumerated")
	}
}

func TestRunPass_FixedSeedIsReproducible(t *testing.T) {
	now := time.Now()

	run := func() store.Tanker {
		fleet := newFakeFleetStore(
			testTanker("TNK-001", store.StatusInTransit, time.Hour, now),
			testTanker("TNK-002", store.StatusAtSource, 5*time.Minute, now),
		)
		c := newTestCoordinator(fleet, nil, now)
		if _, err := c.RunPass(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snap, _ := fleet.LoadSnapshot(context.Background(), "TNK-001")
		return *snap
	}

	a, b := run(), run()
	if *a.Lat != *b.Lat || *a.Lon != *b.Lon || a.AvgSpeedKmh != b.AvgSpeedKmh {
		t.Errorf("two runs with the same seed diverged: %+v vs %+v", a, b)
	}
}
