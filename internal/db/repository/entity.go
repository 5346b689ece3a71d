package repository

import (
	"context"
	"fmt"

	"tripstore/internal/domain"
)

// EntityStore provides insert-or-find storage for the globally
// deduplicated entities (locations, lines) and plain insert for the
// leg-scoped ones (stops). It runs against whatever querier it is given,
// so the trip writer can bind one to its transaction.
type EntityStore struct {
	q querier
}

// NewEntityStore creates an EntityStore bound to db or an open transaction.
func NewEntityStore(q querier) *EntityStore {
	return &EntityStore{q: q}
}

// UpsertLocation inserts the location and returns its internal id. When a
// row with the same (network, external id) identity already exists, the
// existing row's id is returned instead; no duplicate is created.
// Locations without an external id always insert fresh rows.
//
// The insert-or-find is atomic per call: the conditional insert and the
// fallback lookup run on the same connection, and writers are serialized
// on the single-connection write pool.
func (s *EntityStore) UpsertLocation(ctx context.Context, network domain.NetworkID, l domain.Location) (int64, error) {
	row := locationToRow(network, l)

	if !l.HasID() {
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO locations (networkId, id, type, lat, lon, place, name)
			VALUES (?, NULL, ?, ?, ?, ?, ?)`,
			row.Network, row.Type, row.Lat, row.Lon, row.Place, row.Name)
		if err != nil {
			return 0, mapDBError(err)
		}
		return res.LastInsertId()
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO locations (networkId, id, type, lat, lon, place, name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (networkId, id) DO NOTHING`,
		row.Network, row.ID, row.Type, row.Lat, row.Lon, row.Place, row.Name)
	if err != nil {
		return 0, mapDBError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n > 0 {
		return res.LastInsertId()
	}

	var uid int64
	err = s.q.QueryRowContext(ctx,
		`SELECT uid FROM locations WHERE networkId = ? AND id = ?`,
		row.Network, row.ID).Scan(&uid)
	if err != nil {
		return 0, fmt.Errorf("find location after conflict: %w", mapDBError(err))
	}
	return uid, nil
}

// UpsertLine inserts the line and returns its internal id, resolving a
// conflict on the external id to the existing row's id.
func (s *EntityStore) UpsertLine(ctx context.Context, network domain.NetworkID, l domain.Line) (int64, error) {
	row, err := lineToRow(network, l)
	if err != nil {
		return 0, err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO lines (id, networkId, product, label, name, style, message, altName)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		row.ID, row.Network, row.Product, row.Label, row.Name, row.Style, row.Message, row.AltName)
	if err != nil {
		return 0, mapDBError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, err
	} else if n > 0 {
		return res.LastInsertId()
	}

	var uid int64
	err = s.q.QueryRowContext(ctx, `SELECT uid FROM lines WHERE id = ?`, row.ID).Scan(&uid)
	if err != nil {
		return 0, fmt.Errorf("find line after conflict: %w", mapDBError(err))
	}
	return uid, nil
}

// InsertStop always inserts a fresh stop row linked to the given location
// and returns its id. Stops are leg-scoped and never deduplicated.
func (s *EntityStore) InsertStop(ctx context.Context, stop domain.Stop, locationID int64) (int64, error) {
	row := stopToRow(stop, locationID)

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO stops (
			locationId,
			plannedArrivalTime, predictedArrivalTime,
			plannedArrivalPosition, predictedArrivalPosition, arrivalCancelled,
			plannedDepartureTime, predictedDepartureTime,
			plannedDeparturePosition, predictedDeparturePosition, departureCancelled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.LocationID,
		row.PlannedArrivalTime, row.PredictedArrivalTime,
		row.PlannedArrivalPosition, row.PredictedArrivalPosition, row.ArrivalCancelled,
		row.PlannedDepartureTime, row.PredictedDepartureTime,
		row.PlannedDeparturePosition, row.PredictedDeparturePosition, row.DepartureCancelled)
	if err != nil {
		return 0, mapDBError(err)
	}
	return res.LastInsertId()
}
