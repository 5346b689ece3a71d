package service

import (
	"context"
	"log/slog"
	"time"

	"tripstore/internal/domain"
)

// reloadSlack is subtracted from the original query time so the reloaded
// window still contains a trip whose departure shifted slightly.
const reloadSlack = 5 * time.Second

// Reloader re-fetches a cached trip from the provider to pick up fresh
// real-time data. The provider has no fetch-by-id call, so the reloader
// repeats the original search and matches the old trip against the
// candidates by identity heuristic.
type Reloader struct {
	provider domain.TripProvider
	logger   *slog.Logger
}

func NewReloader(provider domain.TripProvider, logger *slog.Logger) *Reloader {
	return &Reloader{
		provider: provider,
		logger:   logger.With("component", "reloader"),
	}
}

// Reload re-runs the search that produced old and returns the candidate
// that is the same journey. Returns a NoMatchingTripError when the
// provider no longer reports the trip, and a ProviderError when the
// query itself fails at the provider level.
func (r *Reloader) Reload(ctx context.Context, q domain.TripQuery, old *domain.Trip) (*domain.Trip, error) {
	q.Time = q.Time.Add(-reloadSlack)
	q.Departure = true

	res, err := r.provider.QueryTrips(ctx, q)
	if err != nil {
		return nil, err
	}
	if res.Status != domain.StatusOK || len(res.Trips) == 0 {
		r.logger.Warn("reload query failed", "trip", old.ID, "status", res.Status)
		return nil, &domain.ProviderError{Status: res.Status}
	}

	for _, candidate := range res.Trips {
		if IsSameTrip(old, candidate) {
			r.logger.Debug("reloaded trip", "old", old.ID, "new", candidate.ID)
			return candidate, nil
		}
	}
	return nil, &domain.NoMatchingTripError{TripID: old.ID}
}
