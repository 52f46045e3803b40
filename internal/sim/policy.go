package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/looplab/fsm"

	"tankersim/internal/store"
)

// ErrInvalidState reports a snapshot whose status is not part of the
// lifecycle state set. The coordinator treats it as a data-quality problem,
// never as a reason to abort a pass.
var ErrInvalidState = errors.New("invalid lifecycle state")

// Lifecycle events. The cycle is AtSource → Loading → InTransit →
// ReachedDestination → Unloading → AtSource, with a probabilistic
// InTransit → Delayed → InTransit detour.
const (
	eventLoad    = "load"
	eventDepart  = "depart"
	eventArrive  = "arrive"
	eventDisrupt = "disrupt"
	eventResume  = "resume"
	eventUnload  = "unload"
	eventReturn  = "return"
)

func newLifecycleFSM(initial store.Status) *fsm.FSM {
	return fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: eventLoad, Src: []string{string(store.StatusAtSource)}, Dst: string(store.StatusLoading)},
			{Name: eventDepart, Src: []string{string(store.StatusLoading)}, Dst: string(store.StatusInTransit)},
			{Name: eventArrive, Src: []string{string(store.StatusInTransit)}, Dst: string(store.StatusReachedDestination)},
			{Name: eventDisrupt, Src: []string{string(store.StatusInTransit)}, Dst: string(store.StatusDelayed)},
			{Name: eventResume, Src: []string{string(store.StatusDelayed)}, Dst: string(store.StatusInTransit)},
			{Name: eventUnload, Src: []string{string(store.StatusReachedDestination)}, Dst: string(store.StatusUnloading)},
			{Name: eventReturn, Src: []string{string(store.StatusUnloading)}, Dst: string(store.StatusAtSource)},
		},
		fsm.Callbacks{},
	)
}

// PolicyConfig holds the per-status minimum dwell durations and the
// probability that a due InTransit tanker is disrupted instead of arriving.
type PolicyConfig struct {
	Dwell            map[store.Status]time.Duration
	DelayProbability float64
}

// DefaultDwell returns the stock dwell table.
func DefaultDwell() map[store.Status]time.Duration {
	return map[store.Status]time.Duration{
		store.StatusAtSource:           60 * time.Minute,
		store.StatusLoading:            15 * time.Minute,
		store.StatusInTransit:          5 * time.Hour,
		store.StatusReachedDestination: 45 * time.Minute,
		store.StatusUnloading:          45 * time.Minute,
		store.StatusDelayed:            60 * time.Minute,
	}
}

// Decision is the outcome of one policy evaluation.
type Decision struct {
	// Transition is true when the tanker is due and Next holds the new status.
	Transition bool
	Next       store.Status

	// DataQuality flags a missing or malformed status_changed_at. The
	// fail-safe outcome is "no transition"; the caller surfaces a warning.
	DataQuality bool
}

// Policy decides whether a tanker is due to move to the next lifecycle state.
// It never mutates the snapshot.
type Policy struct {
	cfg PolicyConfig
}

// NewPolicy creates a policy, filling missing dwell entries with defaults.
func NewPolicy(cfg PolicyConfig) *Policy {
	defaults := DefaultDwell()
	if cfg.Dwell == nil {
		cfg.Dwell = defaults
	} else {
		for status, d := range defaults {
			if _, ok := cfg.Dwell[status]; !ok {
				cfg.Dwell[status] = d
			}
		}
	}
	if cfg.DelayProbability < 0 {
		cfg.DelayProbability = 0
	}
	if cfg.DelayProbability > 1 {
		cfg.DelayProbability = 1
	}
	return &Policy{cfg: cfg}
}

// Evaluate maps (current status, time in status) to a transition decision.
// The only random branch is the InTransit delay draw; it consumes exactly one
// value from rng so runs with a fixed seed are reproducible.
func (p *Policy) Evaluate(ctx context.Context, snap *store.Tanker, now time.Time, rng *rand.Rand) (Decision, error) {
	if !snap.Status.Valid() {
		return Decision{}, fmt.Errorf("%w: %q", ErrInvalidState, snap.Status)
	}

	// Fail-safe on malformed timestamps: never throw, never transition.
	if snap.StatusChangedAt.IsZero() || snap.StatusChangedAt.After(now) {
		return Decision{DataQuality: true}, nil
	}

	if now.Sub(snap.StatusChangedAt) < p.cfg.Dwell[snap.Status] {
		return Decision{}, nil
	}

	event := eventFor(snap.Status)
	if snap.Status == store.StatusInTransit && rng.Float64() < p.cfg.DelayProbability {
		event = eventDisrupt
	}

	machine := newLifecycleFSM(snap.Status)
	if err := machine.Event(ctx, event); err != nil {
		return Decision{}, fmt.Errorf("lifecycle transition %s from %q: %w", event, snap.Status, err)
	}

	return Decision{Transition: true, Next: store.Status(machine.Current())}, nil
}

func eventFor(s store.Status) string {
	switch s {
	case store.StatusAtSource:
		return eventLoad
	case store.StatusLoading:
		return eventDepart
	case store.StatusInTransit:
		return eventArrive
	case store.StatusReachedDestination:
		return eventUnload
	case store.StatusUnloading:
		return eventReturn
	case store.StatusDelayed:
		return eventResume
	default:
		return ""
	}
}

// sealFor returns the seal state a tanker carries in a given status. The
// cargo stays sealed for the whole loaded leg, including a delay mid-route.
func sealFor(s store.Status) store.SealStatus {
	switch s {
	case store.StatusInTransit, store.StatusReachedDestination, store.StatusDelayed:
		return store.SealSealed
	default:
		return store.SealOpen
	}
}
