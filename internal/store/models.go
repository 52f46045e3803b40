// Package store contains the persistence layer for tankersim.
package store

import "time"

// Status is the lifecycle state of a tanker. The string values are the
// canonical values written to storage and published in events.
type Status string

const (
	StatusAtSource           Status = "At Source"
	StatusLoading            Status = "Loading"
	StatusInTransit          Status = "In Transit"
	StatusReachedDestination Status = "Reached Destination"
	StatusUnloading          Status = "Unloading"
	StatusDelayed            Status = "Delayed"
)

// Statuses lists every valid lifecycle state.
var Statuses = []Status{
	StatusAtSource,
	StatusLoading,
	StatusInTransit,
	StatusReachedDestination,
	StatusUnloading,
	StatusDelayed,
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// SealStatus tracks whether the tanker's cargo seal is applied.
type SealStatus string

const (
	SealOpen   SealStatus = "Open"
	SealSealed SealStatus = "Sealed"
)

// Location is a named point referenced by a tanker (depot or destination).
type Location struct {
	ID   int64
	Name string
	Lat  float64
	Lon  float64
}

// Tanker is the current-state snapshot of a single physical tanker.
// There is exactly one row per tanker; it is mutated only through the
// coordinator's commit path and never deleted while the system runs.
type Tanker struct {
	TankerID   string
	DriverID   *int64
	DriverName *string
	Status     Status

	// Position is nullable until the first observation.
	Lat *float64
	Lon *float64

	SourceDepot *Location
	Destination *Location

	Seal              SealStatus
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64

	StatusChangedAt time.Time
	LastUpdate      time.Time

	// Version implements optimistic concurrency: a commit only applies if
	// the stored version still matches the one that was loaded.
	Version int64
}

// TimeInStatus returns how long the tanker has been in its current status.
func (t *Tanker) TimeInStatus(now time.Time) time.Duration {
	if t.StatusChangedAt.IsZero() {
		return 0
	}
	return now.Sub(t.StatusChangedAt)
}

// HistoryRecord is one immutable, timestamped copy of a tanker's observable
// state. Records are append-only and never mutated by the engine.
type HistoryRecord struct {
	ID                int64
	TankerID          string
	DriverID          *int64
	Status            Status
	Lat               *float64
	Lon               *float64
	SourceDepotID     *int64
	DestinationID     *int64
	Seal              SealStatus
	OilVolumeLiters   float64
	MaxCapacityLiters float64
	TripDurationHours float64
	AvgSpeedKmh       float64
	RecordedAt        time.Time
}

// HistoryFromSnapshot builds the history record matching a snapshot, so the
// two persisted representations always carry identical post-update values.
func HistoryFromSnapshot(t *Tanker) *HistoryRecord {
	rec := &HistoryRecord{
		TankerID:          t.TankerID,
		DriverID:          t.DriverID,
		Status:            t.Status,
		Lat:               t.Lat,
		Lon:               t.Lon,
		Seal:              t.Seal,
		OilVolumeLiters:   t.OilVolumeLiters,
		MaxCapacityLiters: t.MaxCapacityLiters,
		TripDurationHours: t.TripDurationHours,
		AvgSpeedKmh:       t.AvgSpeedKmh,
		RecordedAt:        t.LastUpdate,
	}
	if t.SourceDepot != nil {
		id := t.SourceDepot.ID
		rec.SourceDepotID = &id
	}
	if t.Destination != nil {
		id := t.Destination.ID
		rec.DestinationID = &id
	}
	return rec
}
