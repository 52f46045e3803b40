package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a tanker id has no snapshot row, e.g. when it
// vanished between enumeration and load.
var ErrNotFound = errors.New("tanker not found")

// ErrConflict is returned by Commit when the snapshot was modified by someone
// else since it was loaded (optimistic concurrency loss).
var ErrConflict = errors.New("snapshot version conflict")

// FleetStore is the storage contract used by the lifecycle coordinator and
// the read-side consumers (CLI, retrain trigger).
//
// Commit must apply the snapshot update and the history append as a single
// atomic unit scoped to one tanker: either both are durable or neither is.
type FleetStore interface {
	// ListTankerIDs enumerates every tanker in the system.
	ListTankerIDs(ctx context.Context) ([]string, error)

	// LoadSnapshot reads the current snapshot for one tanker, including its
	// version and joined depot/destination coordinates.
	// Returns ErrNotFound if the tanker does not exist.
	LoadSnapshot(ctx context.Context, tankerID string) (*Tanker, error)

	// Commit writes the updated snapshot and appends the matching history
	// record in one transaction. The snapshot's Version must be the version
	// that was loaded; on success the stored version is bumped by one.
	// Returns ErrConflict if the stored version no longer matches.
	Commit(ctx context.Context, snapshot *Tanker, record *HistoryRecord) error

	// ListSnapshots returns the current snapshot of every tanker.
	ListSnapshots(ctx context.Context) ([]Tanker, error)

	// ListHistory returns the most recent history records for one tanker,
	// newest first.
	ListHistory(ctx context.Context, tankerID string, limit int) ([]HistoryRecord, error)

	// CountHistorySince counts history records appended at or after the
	// given instant, across all tankers.
	CountHistorySince(ctx context.Context, since time.Time) (int64, error)
}
