package domain

import (
	"context"
	"time"
)

// TripProvider is the remote journey-planning port. Implementations do
// network I/O and must honour ctx cancellation.
type TripProvider interface {
	QueryTrips(ctx context.Context, q TripQuery) (*QueryTripsResult, error)
	QueryMoreTrips(ctx context.Context, qc QueryContext, later bool) (*QueryTripsResult, error)
}

// CleanupStats reports how many orphaned rows each garbage-collection
// sweep removed.
type CleanupStats struct {
	Stops     int64
	Lines     int64
	Locations int64
	TripLegs  int64
}

// TripStore persists trips as a normalized relational graph.
type TripStore interface {
	// WriteTrip decomposes the trip into normalized rows in one
	// transaction and returns the trip's internal id. Re-writing a trip
	// with the same external id replaces the trip and its legs while
	// reusing deduplicated location and line rows.
	WriteTrip(ctx context.Context, t *Trip, network NetworkID) (int64, error)

	// GetTripByID reconstructs a trip from its normalized rows. Returns
	// a NotFoundError when no trip row matches the external id.
	GetTripByID(ctx context.Context, externalID string) (*Trip, error)

	// DeleteTrip removes the trip and its legs, then garbage-collects
	// orphaned rows.
	DeleteTrip(ctx context.Context, externalID string) error

	// DeleteTripsArrivingBefore removes all trips whose last leg arrived
	// before cutoff and returns how many were deleted. Callers run
	// Cleanup afterwards.
	DeleteTripsArrivingBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Cleanup reclaims stop, line, location, and leg rows no longer
	// referenced by any trip.
	Cleanup(ctx context.Context) (CleanupStats, error)
}

// FavLocationType records how a favorite location was used in a search.
type FavLocationType string

const (
	FavLocationFrom FavLocationType = "FROM"
	FavLocationVia  FavLocationType = "VIA"
	FavLocationTo   FavLocationType = "TO"
)

// SearchStore persists stored searches and favorite locations.
type SearchStore interface {
	// AddFavoriteLocation inserts or finds the favorite row for the
	// location and bumps its use counter for the given slot. Locations
	// of coordinate type are not stored and return (0, nil).
	AddFavoriteLocation(ctx context.Context, network NetworkID, l Location, use FavLocationType) (int64, error)

	// StoreSearch inserts or refreshes a stored search row and returns
	// its id. Refreshing bumps the use count and last-used timestamp.
	StoreSearch(ctx context.Context, network NetworkID, fromID int64, viaID *int64, toID int64) (int64, error)

	IsFavorite(ctx context.Context, searchID int64) (bool, error)
	SetFavorite(ctx context.Context, searchID int64, favorite bool) error
}
