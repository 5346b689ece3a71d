package repository

import (
	"database/sql"

	"tripstore/internal/domain"
)

// Row types mirror the persisted schema one to one. Mapping between rows
// and the aggregate domain types is explicit; there is no reflection.

type locationRow struct {
	UID     int64
	Network sql.NullString
	ID      sql.NullString
	Type    string
	Lat     int
	Lon     int
	Place   sql.NullString
	Name    sql.NullString
}

func locationToRow(network domain.NetworkID, l domain.Location) locationRow {
	return locationRow{
		Network: sql.NullString{String: string(network), Valid: true},
		ID:      nullString(l.ID),
		Type:    string(l.Type),
		Lat:     l.Lat,
		Lon:     l.Lon,
		Place:   nullString(l.Place),
		Name:    nullString(l.Name),
	}
}

func (r locationRow) toLocation() domain.Location {
	return domain.Location{
		Network: domain.NetworkID(r.Network.String),
		ID:      r.ID.String,
		Type:    domain.LocationType(r.Type),
		Lat:     r.Lat,
		Lon:     r.Lon,
		Place:   r.Place.String,
		Name:    r.Name.String,
	}
}

type lineRow struct {
	UID     int64
	ID      string
	Network sql.NullString
	Product string
	Label   sql.NullString
	Name    sql.NullString
	Style   sql.NullString
	Message sql.NullString
	AltName sql.NullString
}

func lineToRow(network domain.NetworkID, l domain.Line) (lineRow, error) {
	style := sql.NullString{}
	if l.Style != nil {
		v, err := jsonText(*l.Style)
		if err != nil {
			return lineRow{}, err
		}
		style = v
	}
	return lineRow{
		ID:      l.ID,
		Network: sql.NullString{String: string(network), Valid: true},
		Product: string(l.Product),
		Label:   nullStringPtr(l.Label),
		Name:    nullStringPtr(l.Name),
		Style:   style,
		Message: nullString(l.Message),
		AltName: nullString(l.AltName),
	}, nil
}

func (r lineRow) toLine() (domain.Line, error) {
	line := domain.Line{
		Network: domain.NetworkID(r.Network.String),
		ID:      r.ID,
		Product: domain.Product(r.Product),
		Label:   stringPtr(r.Label),
		Name:    stringPtr(r.Name),
		Message: r.Message.String,
		AltName: r.AltName.String,
	}
	if r.Style.Valid {
		var style domain.Style
		if err := jsonInto(r.Style, &style); err != nil {
			return domain.Line{}, err
		}
		line.Style = &style
	}
	return line, nil
}

type stopRow struct {
	UID                        int64
	LocationID                 int64
	PlannedArrivalTime         sql.NullInt64
	PredictedArrivalTime       sql.NullInt64
	PlannedArrivalPosition     sql.NullString
	PredictedArrivalPosition   sql.NullString
	ArrivalCancelled           bool
	PlannedDepartureTime       sql.NullInt64
	PredictedDepartureTime     sql.NullInt64
	PlannedDeparturePosition   sql.NullString
	PredictedDeparturePosition sql.NullString
	DepartureCancelled         bool
}

func stopToRow(s domain.Stop, locationID int64) stopRow {
	return stopRow{
		LocationID:                 locationID,
		PlannedArrivalTime:         millis(s.PlannedArrivalTime),
		PredictedArrivalTime:       millis(s.PredictedArrivalTime),
		PlannedArrivalPosition:     positionText(s.PlannedArrivalPosition),
		PredictedArrivalPosition:   positionText(s.PredictedArrivalPosition),
		ArrivalCancelled:           s.ArrivalCancelled,
		PlannedDepartureTime:       millis(s.PlannedDepartureTime),
		PredictedDepartureTime:     millis(s.PredictedDepartureTime),
		PlannedDeparturePosition:   positionText(s.PlannedDeparturePosition),
		PredictedDeparturePosition: positionText(s.PredictedDeparturePosition),
		DepartureCancelled:         s.DepartureCancelled,
	}
}

func (r stopRow) toStop(loc domain.Location) domain.Stop {
	return domain.Stop{
		Location:                   loc,
		PlannedArrivalTime:         timeFromMillis(r.PlannedArrivalTime),
		PredictedArrivalTime:       timeFromMillis(r.PredictedArrivalTime),
		PlannedArrivalPosition:     positionFromText(r.PlannedArrivalPosition),
		PredictedArrivalPosition:   positionFromText(r.PredictedArrivalPosition),
		ArrivalCancelled:           r.ArrivalCancelled,
		PlannedDepartureTime:       timeFromMillis(r.PlannedDepartureTime),
		PredictedDepartureTime:     timeFromMillis(r.PredictedDepartureTime),
		PlannedDeparturePosition:   positionFromText(r.PlannedDeparturePosition),
		PredictedDeparturePosition: positionFromText(r.PredictedDeparturePosition),
		DepartureCancelled:         r.DepartureCancelled,
	}
}

func positionText(p *domain.Position) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: p.Name, Valid: true}
}

func positionFromText(v sql.NullString) *domain.Position {
	if !v.Valid {
		return nil
	}
	return &domain.Position{Name: v.String}
}

type tripLegRow struct {
	UID             int64
	TripID          int64
	LegNumber       int
	IsPublicLeg     bool
	DepartureID     sql.NullInt64
	ArrivalID       sql.NullInt64
	Path            sql.NullString
	LineID          sql.NullInt64
	DestinationID   sql.NullInt64
	DepartureStopID sql.NullInt64
	ArrivalStopID   sql.NullInt64
	Message         sql.NullString
	IndividualType  sql.NullString
	DepartureTime   sql.NullInt64
	ArrivalTime     sql.NullInt64
	Min             sql.NullInt64
	Distance        sql.NullInt64
}

func pathFromRow(v sql.NullString) ([]domain.Point, error) {
	var path []domain.Point
	if err := jsonInto(v, &path); err != nil {
		return nil, err
	}
	return path, nil
}
