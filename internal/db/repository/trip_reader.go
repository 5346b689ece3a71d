package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tripstore/internal/domain"
)

// GetTripByID reconstructs a full trip from its normalized rows, the
// inverse of WriteTrip. Legs come back in legNumber order; intermediate
// stops in insertion order. Returns a NotFoundError when no trip row
// matches the external id.
func (r *TripRepo) GetTripByID(ctx context.Context, externalID string) (*domain.Trip, error) {
	var (
		tripUID  int64
		id       string
		fromID   int64
		toID     int64
		capacity sql.NullString
		changes  int
		network  sql.NullString
	)
	err := r.readDB.QueryRowContext(ctx, `
		SELECT uid, id, fromId, toId, capacity, changes, networkId
		FROM trips WHERE id = ? LIMIT 1`, externalID).
		Scan(&tripUID, &id, &fromID, &toID, &capacity, &changes, &network)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound("trip %q not in cache", externalID)
		}
		return nil, err
	}

	from, err := r.readLocation(ctx, fromID)
	if err != nil {
		return nil, fmt.Errorf("read from location: %w", err)
	}
	to, err := r.readLocation(ctx, toID)
	if err != nil {
		return nil, fmt.Errorf("read to location: %w", err)
	}

	trip := &domain.Trip{
		ID:         id,
		From:       from,
		To:         to,
		NumChanges: changes,
		Network:    domain.NetworkID(network.String),
	}
	if err := jsonInto(capacity, &trip.Capacity); err != nil {
		return nil, fmt.Errorf("decode capacity: %w", err)
	}

	legRows, err := r.readLegRows(ctx, tripUID)
	if err != nil {
		return nil, err
	}

	for _, lr := range legRows {
		leg, err := r.assembleLeg(ctx, lr)
		if err != nil {
			return nil, fmt.Errorf("assemble leg %d: %w", lr.LegNumber, err)
		}
		trip.Legs = append(trip.Legs, leg)
	}

	return trip, nil
}

func (r *TripRepo) readLegRows(ctx context.Context, tripUID int64) ([]tripLegRow, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT uid, tripId, legNumber, isPublicLeg,
		       departureId, arrivalId, path,
		       lineId, destinationId, departureStopId, arrivalStopId,
		       message, individualType, departureTime, arrivalTime, min, distance
		FROM tripLegs WHERE tripId = ? ORDER BY legNumber`, tripUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var legs []tripLegRow
	for rows.Next() {
		var lr tripLegRow
		if err := rows.Scan(
			&lr.UID, &lr.TripID, &lr.LegNumber, &lr.IsPublicLeg,
			&lr.DepartureID, &lr.ArrivalID, &lr.Path,
			&lr.LineID, &lr.DestinationID, &lr.DepartureStopID, &lr.ArrivalStopID,
			&lr.Message, &lr.IndividualType, &lr.DepartureTime, &lr.ArrivalTime,
			&lr.Min, &lr.Distance,
		); err != nil {
			return nil, err
		}
		legs = append(legs, lr)
	}
	return legs, rows.Err()
}

func (r *TripRepo) assembleLeg(ctx context.Context, lr tripLegRow) (domain.Leg, error) {
	path, err := pathFromRow(lr.Path)
	if err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}

	if !lr.IsPublicLeg {
		from, err := r.readLocation(ctx, lr.DepartureID.Int64)
		if err != nil {
			return nil, err
		}
		to, err := r.readLocation(ctx, lr.ArrivalID.Int64)
		if err != nil {
			return nil, err
		}
		return &domain.IndividualLeg{
			Type:      domain.IndividualType(lr.IndividualType.String),
			From:      from,
			To:        to,
			StartTime: timeValueFromMillis(lr.DepartureTime),
			EndTime:   timeValueFromMillis(lr.ArrivalTime),
			Points:    path,
			Min:       int(lr.Min.Int64),
			Distance:  int(lr.Distance.Int64),
		}, nil
	}

	line, err := r.readLine(ctx, lr.LineID.Int64)
	if err != nil {
		return nil, err
	}
	depStop, err := r.readStop(ctx, lr.DepartureStopID.Int64)
	if err != nil {
		return nil, err
	}
	arrStop, err := r.readStop(ctx, lr.ArrivalStopID.Int64)
	if err != nil {
		return nil, err
	}
	intermediate, err := r.readIntermediateStops(ctx, lr.UID)
	if err != nil {
		return nil, err
	}

	leg := &domain.PublicLeg{
		Line:              line,
		DepartureStop:     depStop,
		ArrivalStop:       arrStop,
		IntermediateStops: intermediate,
		Message:           lr.Message.String,
		Points:            path,
	}
	if lr.DestinationID.Valid {
		dest, err := r.readLocation(ctx, lr.DestinationID.Int64)
		if err != nil {
			return nil, err
		}
		leg.Destination = &dest
	}
	return leg, nil
}

func (r *TripRepo) readLocation(ctx context.Context, uid int64) (domain.Location, error) {
	var row locationRow
	err := r.readDB.QueryRowContext(ctx, `
		SELECT uid, networkId, id, type, lat, lon, place, name
		FROM locations WHERE uid = ?`, uid).
		Scan(&row.UID, &row.Network, &row.ID, &row.Type, &row.Lat, &row.Lon, &row.Place, &row.Name)
	if err != nil {
		return domain.Location{}, mapDBError(err)
	}
	return row.toLocation(), nil
}

func (r *TripRepo) readLine(ctx context.Context, uid int64) (domain.Line, error) {
	var row lineRow
	err := r.readDB.QueryRowContext(ctx, `
		SELECT uid, id, networkId, product, label, name, style, message, altName
		FROM lines WHERE uid = ?`, uid).
		Scan(&row.UID, &row.ID, &row.Network, &row.Product, &row.Label, &row.Name,
			&row.Style, &row.Message, &row.AltName)
	if err != nil {
		return domain.Line{}, mapDBError(err)
	}
	return row.toLine()
}

func (r *TripRepo) readStop(ctx context.Context, uid int64) (domain.Stop, error) {
	row, locID, err := r.scanStop(ctx, uid)
	if err != nil {
		return domain.Stop{}, err
	}
	loc, err := r.readLocation(ctx, locID)
	if err != nil {
		return domain.Stop{}, err
	}
	return row.toStop(loc), nil
}

func (r *TripRepo) scanStop(ctx context.Context, uid int64) (stopRow, int64, error) {
	var row stopRow
	err := r.readDB.QueryRowContext(ctx, `
		SELECT uid, locationId,
		       plannedArrivalTime, predictedArrivalTime,
		       plannedArrivalPosition, predictedArrivalPosition, arrivalCancelled,
		       plannedDepartureTime, predictedDepartureTime,
		       plannedDeparturePosition, predictedDeparturePosition, departureCancelled
		FROM stops WHERE uid = ?`, uid).
		Scan(&row.UID, &row.LocationID,
			&row.PlannedArrivalTime, &row.PredictedArrivalTime,
			&row.PlannedArrivalPosition, &row.PredictedArrivalPosition, &row.ArrivalCancelled,
			&row.PlannedDepartureTime, &row.PredictedDepartureTime,
			&row.PlannedDeparturePosition, &row.PredictedDeparturePosition, &row.DepartureCancelled)
	if err != nil {
		return stopRow{}, 0, mapDBError(err)
	}
	return row, row.LocationID, nil
}

// readIntermediateStops returns a leg's intermediate stops through the
// cross-ref table. Stop uids ascend in insertion order, which preserves
// the original stop sequence.
func (r *TripRepo) readIntermediateStops(ctx context.Context, legUID int64) ([]domain.Stop, error) {
	rows, err := r.readDB.QueryContext(ctx, `
		SELECT s.uid, s.locationId,
		       s.plannedArrivalTime, s.predictedArrivalTime,
		       s.plannedArrivalPosition, s.predictedArrivalPosition, s.arrivalCancelled,
		       s.plannedDepartureTime, s.predictedDepartureTime,
		       s.plannedDeparturePosition, s.predictedDeparturePosition, s.departureCancelled,
		       l.uid, l.networkId, l.id, l.type, l.lat, l.lon, l.place, l.name
		FROM tripLegToStopsCrossRef x
		JOIN stops s ON s.uid = x.stopId
		JOIN locations l ON l.uid = s.locationId
		WHERE x.tripLegId = ?
		ORDER BY s.uid`, legUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var stops []domain.Stop
	for rows.Next() {
		var sr stopRow
		var lr locationRow
		if err := rows.Scan(
			&sr.UID, &sr.LocationID,
			&sr.PlannedArrivalTime, &sr.PredictedArrivalTime,
			&sr.PlannedArrivalPosition, &sr.PredictedArrivalPosition, &sr.ArrivalCancelled,
			&sr.PlannedDepartureTime, &sr.PredictedDepartureTime,
			&sr.PlannedDeparturePosition, &sr.PredictedDeparturePosition, &sr.DepartureCancelled,
			&lr.UID, &lr.Network, &lr.ID, &lr.Type, &lr.Lat, &lr.Lon, &lr.Place, &lr.Name,
		); err != nil {
			return nil, err
		}
		stops = append(stops, sr.toStop(lr.toLocation()))
	}
	return stops, rows.Err()
}
