package repository

import (
	"context"
	"database/sql"
	"time"

	"tripstore/internal/domain"
)

// Garbage collection sweeps. Each is a set subtraction over foreign-key
// usage. The order is fixed: location cleanup depends on stop cleanup
// having removed dangling stops first, and the cross-ref purge must run
// before the stop sweep so stops of deleted legs count as unreferenced.
const (
	sweepCrossRefs = `
		DELETE FROM tripLegToStopsCrossRef
		WHERE tripLegId NOT IN (SELECT uid FROM tripLegs)`

	sweepStops = `
		DELETE FROM stops
		WHERE uid NOT IN (SELECT stopId FROM tripLegToStopsCrossRef)
		  AND uid NOT IN (SELECT departureStopId FROM tripLegs WHERE departureStopId IS NOT NULL)
		  AND uid NOT IN (SELECT arrivalStopId FROM tripLegs WHERE arrivalStopId IS NOT NULL)`

	sweepLines = `
		DELETE FROM lines
		WHERE uid NOT IN (SELECT lineId FROM tripLegs WHERE lineId IS NOT NULL)`

	sweepLocations = `
		DELETE FROM locations
		WHERE uid NOT IN (SELECT fromId FROM trips)
		  AND uid NOT IN (SELECT toId FROM trips)
		  AND uid NOT IN (SELECT departureId FROM tripLegs WHERE departureId IS NOT NULL)
		  AND uid NOT IN (SELECT arrivalId FROM tripLegs WHERE arrivalId IS NOT NULL)
		  AND uid NOT IN (SELECT destinationId FROM tripLegs WHERE destinationId IS NOT NULL)
		  AND uid NOT IN (SELECT locationId FROM stops)`

	// Defensive: legs of vanished trips are normally removed by the
	// cascade already.
	sweepTripLegs = `
		DELETE FROM tripLegs
		WHERE tripId NOT IN (SELECT uid FROM trips)`
)

// Cleanup reclaims rows no longer referenced by any trip. Invoked after
// every trip deletion and after the expiry sweep.
func (r *TripRepo) Cleanup(ctx context.Context) (domain.CleanupStats, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CleanupStats{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	stats, err := cleanupTx(ctx, tx)
	if err != nil {
		return domain.CleanupStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CleanupStats{}, err
	}
	return stats, nil
}

func cleanupTx(ctx context.Context, tx *sql.Tx) (domain.CleanupStats, error) {
	var stats domain.CleanupStats

	if _, err := tx.ExecContext(ctx, sweepCrossRefs); err != nil {
		return stats, mapDBError(err)
	}

	for _, sweep := range []struct {
		query string
		count *int64
	}{
		{sweepStops, &stats.Stops},
		{sweepLines, &stats.Lines},
		{sweepLocations, &stats.Locations},
		{sweepTripLegs, &stats.TripLegs},
	} {
		res, err := tx.ExecContext(ctx, sweep.query)
		if err != nil {
			return stats, mapDBError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stats, err
		}
		*sweep.count = n
	}

	return stats, nil
}

// DeleteTrip removes the trip with the given external id and its legs,
// then garbage-collects orphaned rows, all in one transaction.
func (r *TripRepo) DeleteTrip(ctx context.Context, externalID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE id = ?`, externalID)
	if err != nil {
		return mapDBError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.ErrNotFound("trip %q not in cache", externalID)
	}

	if _, err := cleanupTx(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTripsArrivingBefore removes every trip whose last leg arrived
// before cutoff. Trips without any leg are untouched; callers follow up
// with Cleanup.
func (r *TripRepo) DeleteTripsArrivingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM trips WHERE uid IN (
			SELECT tripId FROM tripLegs
			GROUP BY tripId
			HAVING MAX(arrivalTime) < ?
		)`, cutoff.UnixMilli())
	if err != nil {
		return 0, mapDBError(err)
	}
	return res.RowsAffected()
}
