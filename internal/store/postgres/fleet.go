package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tankersim/internal/store"
)

const snapshotColumns = `
	t.tanker_id, t.driver_id, d.driver_name, t.current_status,
	t.current_location_lat, t.current_location_lon,
	t.source_depot_id, dep.depot_name, dep.location_lat, dep.location_lon,
	t.destination_id, dst.destination_name, dst.location_lat, dst.location_lon,
	t.seal_status, t.oil_volume_liters, t.max_capacity_liters,
	t.trip_duration_hours, t.avg_speed_kmh,
	t.status_changed_at, t.last_update, t.version`

const snapshotJoins = `
	FROM tankers t
	LEFT JOIN drivers d ON t.driver_id = d.driver_id
	LEFT JOIN depots dep ON t.source_depot_id = dep.depot_id
	LEFT JOIN destinations dst ON t.destination_id = dst.destination_id`

// ListTankerIDs enumerates every tanker in the system.
func (s *Store) ListTankerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tanker_id FROM tankers ORDER BY tanker_id")
	if err != nil {
		return nil, fmt.Errorf("failed to list tanker ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tanker id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tanker id rows error: %w", err)
	}
	return ids, nil
}

// LoadSnapshot reads the current snapshot for one tanker.
// This is always a fresh read; concurrent API readers must never see a
// cached or torn state.
func (s *Store) LoadSnapshot(ctx context.Context, tankerID string) (*store.Tanker, error) {
	query := "SELECT" + snapshotColumns + snapshotJoins + " WHERE t.tanker_id = $1"

	row := s.db.QueryRowContext(ctx, query, tankerID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", tankerID, err)
	}
	return snap, nil
}

// ListSnapshots returns the current snapshot of every tanker.
func (s *Store) ListSnapshots(ctx context.Context) ([]store.Tanker, error) {
	query := "SELECT" + snapshotColumns + snapshotJoins + " ORDER BY t.tanker_id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var tankers []store.Tanker
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		tankers = append(tankers, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot rows error: %w", err)
	}
	return tankers, nil
}

// Commit applies a snapshot update and its history append as one transaction
// scoped to a single tanker. The UPDATE is guarded by the version loaded with
// the snapshot; a concurrent writer makes it match zero rows and the whole
// commit rolls back with store.ErrConflict.
func (s *Store) Commit(ctx context.Context, snapshot *store.Tanker, record *store.HistoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit for %s: %w", snapshot.TankerID, err)
	}
	defer tx.Rollback()

	var depotID, destID *int64
	if snapshot.SourceDepot != nil {
		depotID = &snapshot.SourceDepot.ID
	}
	if snapshot.Destination != nil {
		destID = &snapshot.Destination.ID
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE tankers SET
			driver_id = $2,
			current_status = $3,
			current_location_lat = $4,
			current_location_lon = $5,
			source_depot_id = $6,
			destination_id = $7,
			seal_status = $8,
			oil_volume_liters = $9,
			max_capacity_liters = $10,
			trip_duration_hours = $11,
			avg_speed_kmh = $12,
			status_changed_at = $13,
			last_update = $14,
			version = version + 1
		WHERE tanker_id = $1 AND version = $15
	`,
		snapshot.TankerID, snapshot.DriverID, snapshot.Status,
		snapshot.Lat, snapshot.Lon, depotID, destID,
		snapshot.Seal, snapshot.OilVolumeLiters, snapshot.MaxCapacityLiters,
		snapshot.TripDurationHours, snapshot.AvgSpeedKmh,
		snapshot.StatusChangedAt, snapshot.LastUpdate, snapshot.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot for %s: %w", snapshot.TankerID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for %s: %w", snapshot.TankerID, err)
	}
	if affected == 0 {
		// Distinguish a vanished tanker from a lost version race.
		var one int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM tankers WHERE tanker_id = $1", snapshot.TankerID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to probe tanker %s: %w", snapshot.TankerID, err)
		}
		return store.ErrConflict
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tanker_history (
			tanker_id, driver_id, status,
			location_lat, location_lon,
			source_depot_id, destination_id,
			seal_status, oil_volume_liters, max_capacity_liters,
			trip_duration_hours, avg_speed_kmh, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		record.TankerID, record.DriverID, record.Status,
		record.Lat, record.Lon, record.SourceDepotID, record.DestinationID,
		record.Seal, record.OilVolumeLiters, record.MaxCapacityLiters,
		record.TripDurationHours, record.AvgSpeedKmh, record.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append history for %s: %w", record.TankerID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update for %s: %w", snapshot.TankerID, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*store.Tanker, error) {
	var (
		snap       store.Tanker
		driverID   sql.NullInt64
		driverName sql.NullString
		lat, lon   sql.NullFloat64

		depotID            sql.NullInt64
		depotName          sql.NullString
		depotLat, depotLon sql.NullFloat64

		destID           sql.NullInt64
		destName         sql.NullString
		destLat, destLon sql.NullFloat64

		statusChangedAt sql.NullTime
	)

	err := row.Scan(
		&snap.TankerID, &driverID, &driverName, &snap.Status,
		&lat, &lon,
		&depotID, &depotName, &depotLat, &depotLon,
		&destID, &destName, &destLat, &destLon,
		&snap.Seal, &snap.OilVolumeLiters, &snap.MaxCapacityLiters,
		&snap.TripDurationHours, &snap.AvgSpeedKmh,
		&statusChangedAt, &snap.LastUpdate, &snap.Version,
	)
	if err != nil {
		return nil, err
	}

	if driverID.Valid {
		snap.DriverID = &driverID.Int64
	}
	if driverName.Valid {
		snap.DriverName = &driverName.String
	}
	if lat.Valid {
		snap.Lat = &lat.Float64
	}
	if lon.Valid {
		snap.Lon = &lon.Float64
	}
	if depotID.Valid {
		snap.SourceDepot = &store.Location{
			ID:   depotID.Int64,
			Name: depotName.String,
			Lat:  depotLat.Float64,
			Lon:  depotLon.Float64,
		}
	}
	if destID.Valid {
		snap.Destination = &store.Location{
			ID:   destID.Int64,
			Name: destName.String,
			Lat:  destLat.Float64,
			Lon:  destLon.Float64,
		}
	}
	// A NULL status_changed_at is a data-quality case; the zero time makes
	// the transition policy treat the tanker as not due.
	if statusChangedAt.Valid {
		snap.StatusChangedAt = statusChangedAt.Time
	}

	return &snap, nil
}
