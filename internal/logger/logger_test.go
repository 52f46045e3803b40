package logger

import (
	"context"
	"testing"
)

func TestWithTickID_And_TickIDFromContext(t *testing.T) {
	ctx := context.Background()
	tickID := "tick-12345"

	// Initially empty
	if got := TickIDFromContext(ctx); got != "" {
		t.Errorf("TickIDFromContext() on empty ctx = %v, want empty", got)
	}

	// After setting
	ctx = WithTickID(ctx, tickID)
	if got := TickIDFromContext(ctx); got != tickID {
		t.Errorf("TickIDFromContext() = %v, want %v", got, tickID)
	}
}

func TestFromContext_WithTickID(t *testing.T) {
	base := New()
	ctx := context.Background()
	tickID := "tick-67890"

	// Without tick ID - should return base logger (not nil)
	logger := FromContext(ctx, base)
	if logger == nil {
		t.Error("FromContext() returned nil")
	}

	// With tick ID - should return logger with tick_id attached
	ctx = WithTickID(ctx, tickID)
	loggerWithID := FromContext(ctx, base)
	if loggerWithID == nil {
		t.Error("FromContext() with tick ID returned nil")
	}
}

func TestNew_ReturnsLogger(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Error("New() returned nil")
	}
}
