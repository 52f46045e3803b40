package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tankersim/internal/store"
)

// ListHistory returns the most recent history records for one tanker,
// newest first.
func (s *Store) ListHistory(ctx context.Context, tankerID string, limit int) ([]store.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, tanker_id, driver_id, status,
			location_lat, location_lon,
			source_depot_id, destination_id,
			seal_status, oil_volume_liters, max_capacity_liters,
			trip_duration_hours, avg_speed_kmh, recorded_at
		FROM tanker_history
		WHERE tanker_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, tankerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history for %s: %w", tankerID, err)
	}
	defer rows.Close()

	var records []store.HistoryRecord
	for rows.Next() {
		var (
			rec      store.HistoryRecord
			driverID sql.NullInt64
			lat, lon sql.NullFloat64
			depotID  sql.NullInt64
			destID   sql.NullInt64
		)
		if err := rows.Scan(
			&rec.ID, &rec.TankerID, &driverID, &rec.Status,
			&lat, &lon, &depotID, &destID,
			&rec.Seal, &rec.OilVolumeLiters, &rec.MaxCapacityLiters,
			&rec.TripDurationHours, &rec.AvgSpeedKmh, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if driverID.Valid {
			rec.DriverID = &driverID.Int64
		}
		if lat.Valid {
			rec.Lat = &lat.Float64
		}
		if lon.Valid {
			rec.Lon = &lon.Float64
		}
		if depotID.Valid {
			rec.SourceDepotID = &depotID.Int64
		}
		if destID.Valid {
			rec.DestinationID = &destID.Int64
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows error: %w", err)
	}
	return records, nil
}

// CountHistorySince counts history records appended at or after the given
// instant, across all tankers. Used by the retrain trigger to decide whether
// enough samples have accumulated.
func (s *Store) CountHistorySince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tanker_history WHERE recorded_at >= $1", since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// CountHistory returns the total number of history records.
func (s *Store) CountHistory(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tanker_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

// CountTankers returns the current fleet size.
func (s *Store) CountTankers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tankers").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tankers: %w", err)
	}
	return count, nil
}
