package sim

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"tankersim/internal/store"
)

func policySnapshot(status store.Status, inStatus time.Duration, now time.Time) *store.Tanker {
	return &store.Tanker{
		TankerID:        "TNK-001",
		Status:          status,
		StatusChangedAt: now.Add(-inStatus),
		LastUpdate:      now.Add(-30 * time.Second),
	}
}

func TestEvaluate_DueTransitions(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{DelayProbability: 0})

	tests := []struct {
		name     string
		status   store.Status
		inStatus time.Duration
		want     store.Status
	}{
		{"at source loads", store.StatusAtSource, 61 * time.Minute, store.StatusLoading},
		{"loading departs", store.StatusLoading, 16 * time.Minute, store.StatusInTransit},
		{"transit arrives", store.StatusInTransit, 5*time.Hour + time.Minute, store.StatusReachedDestination},
		{"arrived unloads", store.StatusReachedDestination, 46 * time.Minute, store.StatusUnloading},
		{"unloaded returns", store.StatusUnloading, 46 * time.Minute, store.StatusAtSource},
		{"delayed resumes", store.StatusDelayed, 61 * time.Minute, store.StatusInTransit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := policySnapshot(tt.status, tt.inStatus, now)
			decision, err := policy.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !decision.Transition {
				t.Fatalf("expected a transition from %q after %v", tt.status, tt.inStatus)
			}
			if decision.Next != tt.want {
				t.Errorf("expected next status %q, got %q", tt.want, decision.Next)
			}
		})
	}
}

func TestEvaluate_NotDueStays(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{})

	// Ten minutes at the source is well under the hour dwell.
	snap := policySnapshot(store.StatusAtSource, 10*time.Minute, now)
	decision, err := policy.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Transition {
		t.Errorf("expected no transition, got one to %q", decision.Next)
	}
}

func TestEvaluate_ExactDwellBoundaryTransitions(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{DelayProbability: 0})

	snap := policySnapshot(store.StatusLoading, 15*time.Minute, now)
	decision, err := policy.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Transition {
		t.Error("a tanker exactly at its dwell duration is due")
	}
}

func TestEvaluate_DelayDraw(t *testing.T) {
	now := time.Now()
	snap := policySnapshot(store.StatusInTransit, 6*time.Hour, now)

	// Probability 1 always disrupts; probability 0 always arrives.
	always := NewPolicy(PolicyConfig{DelayProbability: 1})
	decision, err := always.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Next != store.StatusDelayed {
		t.Errorf("probability 1 should always delay, got %q", decision.Next)
	}

	never := NewPolicy(PolicyConfig{DelayProbability: 0})
	decision, err = never.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Next != store.StatusReachedDestination {
		t.Errorf("probability 0 should always arrive, got %q", decision.Next)
	}
}

func TestEvaluate_DelayOnlyAppliesInTransit(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{DelayProbability: 1})

	// Even with certain delay, a loading tanker departs normally.
	snap := policySnapshot(store.StatusLoading, time.Hour, now)
	decision, err := policy.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Next != store.StatusInTransit {
		t.Errorf("expected departure to %q, got %q", store.StatusInTransit, decision.Next)
	}
}

func TestEvaluate_MalformedTimestampFailsSafe(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{})

	zero := policySnapshot(store.StatusInTransit, 0, now)
	zero.StatusChangedAt = time.Time{}
	decision, err := policy.Evaluate(context.Background(), zero, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Transition || !decision.DataQuality {
		t.Errorf("zero status_changed_at should flag data quality without transitioning: %+v", decision)
	}

	future := policySnapshot(store.StatusInTransit, 0, now)
	future.StatusChangedAt = now.Add(time.Hour)
	decision, err = policy.Evaluate(context.Background(), future, now, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Transition || !decision.DataQuality {
		t.Errorf("future status_changed_at should flag data quality without transitioning: %+v", decision)
	}
}

func TestEvaluate_InvalidStatus(t *testing.T) {
	now := time.Now()
	policy := NewPolicy(PolicyConfig{})

	snap := policySnapshot(store.Status("Teleporting"), time.Hour, now)
	_, err := policy.Evaluate(context.Background(), snap, now, rand.New(rand.NewSource(1)))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got: %v", err)
	}
}

func TestNewPolicy_FillsMissingDwellEntries(t *testing.T) {
	policy := NewPolicy(PolicyConfig{
		Dwell: map[store.Status]time.Duration{
			store.StatusLoading: 5 * time.Minute,
		},
	})

	if got := policy.cfg.Dwell[store.StatusLoading]; got != 5*time.Minute {
		t.Errorf("explicit dwell should be kept, got %v", got)
	}
	if got := policy.cfg.Dwell[store.StatusInTransit]; got != 5*time.Hour {
		t.Errorf("missing dwell should default, got %v", got)
	}
}

func TestSealFor(t *testing.T) {
	sealed := []store.Status{store.StatusInTransit, store.StatusReachedDestination, store.StatusDelayed}
	for _, s := range sealed {
		if sealFor(s) != store.SealSealed {
			t.Errorf("expected %q to be sealed", s)
		}
	}
	open := []store.Status{store.StatusAtSource, store.StatusLoading, store.StatusUnloading}
	for _, s := range open {
		if sealFor(s) != store.SealOpen {
			t.Errorf("expected %q to be open", s)
		}
	}
}
