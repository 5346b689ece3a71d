package repository

import (
	"log/slog"
	"testing"
	"time"

	"tripstore/internal/db"
	"tripstore/internal/domain"
)

const testNetwork = domain.NetworkID("DB")

func newTestTripRepo(t *testing.T) *TripRepo {
	t.Helper()
	writeDB, readDB := db.OpenTestSQLite(t)
	return NewTripRepo(writeDB, readDB, slog.Default())
}

func newTestSearchRepo(t *testing.T) *SearchRepo {
	t.Helper()
	writeDB, _ := db.OpenTestSQLite(t)
	return NewSearchRepo(writeDB, slog.Default())
}

// ts builds a millisecond-precision UTC time, matching storage resolution.
func ts(millis int64) time.Time {
	return time.UnixMilli(millis).UTC()
}

func tsPtr(millis int64) *time.Time {
	v := ts(millis)
	return &v
}

func strPtr(s string) *string { return &s }

func stationLocation(id, name string) domain.Location {
	return domain.Location{
		ID:   id,
		Type: domain.LocationTypeStation,
		Lat:  52521918,
		Lon:  13413215,
		Name: name,
	}
}

func testLine(id, label string) domain.Line {
	return domain.Line{
		ID:      id,
		Product: domain.ProductSuburbanTrain,
		Label:   strPtr(label),
		Name:    strPtr("S-Bahn " + label),
		Style:   &domain.Style{Shape: "rect", BackgroundColor: 0x008c4f},
	}
}

// testTrip builds a two-leg trip: a walk to the station followed by a
// public ride. Departure at depMillis, arrival 30 minutes later.
func testTrip(id string, depMillis int64) *domain.Trip {
	home := domain.Location{Type: domain.LocationTypeAddress, Lat: 52520000, Lon: 13410000, Name: "Home"}
	origin := stationLocation("900100001", "Alexanderplatz")
	middle := stationLocation("900100002", "Hackescher Markt")
	dest := stationLocation("900100003", "Friedrichstr.")

	walk := &domain.IndividualLeg{
		Type:      domain.IndividualWalk,
		From:      home,
		To:        origin,
		StartTime: ts(depMillis - 5*60*1000),
		EndTime:   ts(depMillis),
		Min:       5,
		Distance:  400,
	}
	ride := &domain.PublicLeg{
		Line:        testLine("s5", "S5"),
		Destination: &dest,
		DepartureStop: domain.Stop{
			Location:                 origin,
			PlannedDepartureTime:     tsPtr(depMillis),
			PredictedDepartureTime:   tsPtr(depMillis + 60*1000),
			PlannedDeparturePosition: &domain.Position{Name: "4"},
		},
		ArrivalStop: domain.Stop{
			Location:             dest,
			PlannedArrivalTime:   tsPtr(depMillis + 30*60*1000),
			PredictedArrivalTime: tsPtr(depMillis + 31*60*1000),
		},
		IntermediateStops: []domain.Stop{
			{
				Location:             middle,
				PlannedArrivalTime:   tsPtr(depMillis + 10*60*1000),
				PlannedDepartureTime: tsPtr(depMillis + 11*60*1000),
			},
		},
		Points: []domain.Point{{Lat: 52521918, Lon: 13413215}, {Lat: 52520000, Lon: 13386000}},
	}

	return &domain.Trip{
		ID:         id,
		From:       home,
		To:         dest,
		Legs:       []domain.Leg{walk, ride},
		Capacity:   []int{1, 2},
		NumChanges: 0,
		Network:    testNetwork,
	}
}

func countRows(t *testing.T, repo *TripRepo, table string) int64 {
	t.Helper()
	var n int64
	if err := repo.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
