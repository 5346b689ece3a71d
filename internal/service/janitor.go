package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tripstore/internal/domain"
	"tripstore/internal/metrics"
)

// Janitor periodically expires trips whose last arrival is older than the
// retention window, then garbage-collects the rows the expiry orphaned.
type Janitor struct {
	store     domain.TripStore
	logger    *slog.Logger
	metrics   *metrics.Collector
	retention time.Duration
	interval  time.Duration
	cron      *cron.Cron
	now       func() time.Time
}

func NewJanitor(store domain.TripStore, retention, interval time.Duration, logger *slog.Logger, collector *metrics.Collector) *Janitor {
	return &Janitor{
		store:     store,
		logger:    logger.With("component", "janitor"),
		metrics:   collector,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Start runs one sweep immediately and then schedules recurring sweeps.
// A failed sweep is logged and retried on the next tick; it never stops
// the schedule.
func (j *Janitor) Start(ctx context.Context) error {
	j.RunOnce(ctx)

	j.cron = cron.New()
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", "interval", j.interval, "retention", j.retention)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// RunOnce expires out-of-retention trips and reclaims orphaned rows.
func (j *Janitor) RunOnce(ctx context.Context) {
	j.metrics.JanitorRuns.Inc()
	cutoff := j.now().Add(-j.retention)

	expired, err := j.store.DeleteTripsArrivingBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("expiry sweep failed", "error", err)
		return
	}
	j.metrics.TripsExpired.Add(float64(expired))

	stats, err := j.store.Cleanup(ctx)
	if err != nil {
		j.logger.Error("cleanup sweep failed", "error", err)
		return
	}
	j.metrics.RowsCollected.WithLabelValues("stops").Add(float64(stats.Stops))
	j.metrics.RowsCollected.WithLabelValues("lines").Add(float64(stats.Lines))
	j.metrics.RowsCollected.WithLabelValues("locations").Add(float64(stats.Locations))
	j.metrics.RowsCollected.WithLabelValues("tripLegs").Add(float64(stats.TripLegs))

	j.logger.Info("janitor sweep done",
		"cutoff", cutoff,
		"trips_expired", expired,
		"stops", stats.Stops,
		"lines", stats.Lines,
		"locations", stats.Locations,
		"trip_legs", stats.TripLegs)
}
