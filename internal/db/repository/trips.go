package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"tripstore/internal/domain"
)

// TripRepo persists trips as a normalized relational graph and implements
// domain.TripStore. Writes run on the serialized write pool; trip
// reconstruction uses the read pool.
type TripRepo struct {
	db     *sql.DB // write pool
	readDB *sql.DB
	logger *slog.Logger
}

// NewTripRepo creates a TripRepo over a write/read pool pair. readDB may
// equal db when no split is needed (tests).
func NewTripRepo(db, readDB *sql.DB, logger *slog.Logger) *TripRepo {
	return &TripRepo{db: db, readDB: readDB, logger: logger}
}

// WriteTrip decomposes the trip into normalized rows in one transaction.
// Locations and lines are deduplicated via the entity store; stops always
// insert fresh rows; the trip row replaces any previous row with the same
// external id, which cascades away the previous legs.
func (r *TripRepo) WriteTrip(ctx context.Context, t *domain.Trip, network domain.NetworkID) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	tripID, err := r.writeTripTx(ctx, tx, t, network)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return tripID, nil
}

func (r *TripRepo) writeTripTx(ctx context.Context, tx *sql.Tx, t *domain.Trip, network domain.NetworkID) (int64, error) {
	es := NewEntityStore(tx)

	fromID, err := es.UpsertLocation(ctx, network, t.From)
	if err != nil {
		return 0, fmt.Errorf("upsert from location: %w", err)
	}
	toID, err := es.UpsertLocation(ctx, network, t.To)
	if err != nil {
		return 0, fmt.Errorf("upsert to location: %w", err)
	}

	capacity, err := jsonText(t.Capacity)
	if err != nil {
		return 0, err
	}

	// Replace-on-conflict by external id. The replaced row's legs are
	// removed by the trips -> tripLegs cascade.
	res, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO trips (id, fromId, toId, capacity, changes, networkId)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, fromID, toID, capacity, t.NumChanges, string(network))
	if err != nil {
		return 0, mapDBError(err)
	}
	tripID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, leg := range t.Legs {
		switch l := leg.(type) {
		case *domain.PublicLeg:
			if err := r.writePublicLeg(ctx, tx, es, network, tripID, i, l); err != nil {
				return 0, fmt.Errorf("write public leg %d: %w", i, err)
			}
		case *domain.IndividualLeg:
			if err := r.writeIndividualLeg(ctx, tx, es, network, tripID, i, l); err != nil {
				return 0, fmt.Errorf("write individual leg %d: %w", i, err)
			}
		default:
			return 0, fmt.Errorf("write leg %d: unknown leg type %T", i, leg)
		}
	}

	return tripID, nil
}

func (r *TripRepo) writePublicLeg(ctx context.Context, tx *sql.Tx, es *EntityStore, network domain.NetworkID, tripID int64, legNumber int, leg *domain.PublicLeg) error {
	depLocID, err := es.UpsertLocation(ctx, network, leg.DepartureStop.Location)
	if err != nil {
		return err
	}
	depStopID, err := es.InsertStop(ctx, leg.DepartureStop, depLocID)
	if err != nil {
		return err
	}

	intermediateIDs := make([]int64, 0, len(leg.IntermediateStops))
	for _, stop := range leg.IntermediateStops {
		locID, err := es.UpsertLocation(ctx, network, stop.Location)
		if err != nil {
			return err
		}
		stopID, err := es.InsertStop(ctx, stop, locID)
		if err != nil {
			return err
		}
		intermediateIDs = append(intermediateIDs, stopID)
	}

	arrLocID, err := es.UpsertLocation(ctx, network, leg.ArrivalStop.Location)
	if err != nil {
		return err
	}
	arrStopID, err := es.InsertStop(ctx, leg.ArrivalStop, arrLocID)
	if err != nil {
		return err
	}

	lineID, err := es.UpsertLine(ctx, network, leg.Line)
	if err != nil {
		return err
	}

	var destinationID sql.NullInt64
	if leg.Destination != nil {
		id, err := es.UpsertLocation(ctx, network, *leg.Destination)
		if err != nil {
			return err
		}
		destinationID = sql.NullInt64{Int64: id, Valid: true}
	}

	path, err := jsonText(leg.Points)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tripLegs (
			tripId, legNumber, isPublicLeg,
			departureId, arrivalId, path,
			lineId, destinationId, departureStopId, arrivalStopId,
			message, departureTime, arrivalTime
		) VALUES (?, ?, 1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tripID, legNumber,
		depLocID, arrLocID, path,
		lineID, destinationID, depStopID, arrStopID,
		nullString(leg.Message),
		millisValue(leg.DepartureTime()), millisValue(leg.ArrivalTime()))
	if err != nil {
		return mapDBError(err)
	}
	legID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, stopID := range intermediateIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO tripLegToStopsCrossRef (tripLegId, stopId) VALUES (?, ?)`,
			legID, stopID); err != nil {
			return mapDBError(err)
		}
	}
	return nil
}

func (r *TripRepo) writeIndividualLeg(ctx context.Context, tx *sql.Tx, es *EntityStore, network domain.NetworkID, tripID int64, legNumber int, leg *domain.IndividualLeg) error {
	depID, err := es.UpsertLocation(ctx, network, leg.From)
	if err != nil {
		return err
	}
	arrID, err := es.UpsertLocation(ctx, network, leg.To)
	if err != nil {
		return err
	}

	path, err := jsonText(leg.Points)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO tripLegs (
			tripId, legNumber, isPublicLeg,
			departureId, arrivalId, path,
			individualType, departureTime, arrivalTime, min, distance
		) VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tripID, legNumber,
		depID, arrID, path,
		string(leg.Type),
		millisValue(leg.StartTime), millisValue(leg.EndTime),
		leg.Min, leg.Distance)
	if err != nil {
		return mapDBError(err)
	}
	return nil
}
